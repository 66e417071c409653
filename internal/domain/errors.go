package domain

import "errors"

var (
	ErrPartyNotFound = errors.New("party not found")
	ErrPartyEnded    = errors.New("party has ended")
	ErrPartyFull     = errors.New("party is full")
	ErrNotHost       = errors.New("only the host can do this")
	ErrInvalidInput  = errors.New("invalid input")
	ErrCodeTaken     = errors.New("party code already taken")
	ErrUnavailable   = errors.New("storage unavailable")
)
