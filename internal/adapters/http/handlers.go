// Package http exposes the request/response surface of the watch-party
// engine: lifecycle, membership, chat history and playback checkpoint
// updates. Durable truth is confirmed before any reply.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/adapters/gateway"
	"github.com/avolkov/reelroom/internal/chat"
	"github.com/avolkov/reelroom/internal/domain"
	"github.com/avolkov/reelroom/internal/party"
	"github.com/avolkov/reelroom/internal/playback"
)

type Handlers struct {
	Parties  *party.Service
	Chat     *chat.Relay
	Playback playback.CheckpointStore
	Hub      *gateway.Hub
	Sync     *playback.Synchronizer
}

func NewHandlers(parties *party.Service, relay *chat.Relay, checkpoints playback.CheckpointStore, hub *gateway.Hub, sync *playback.Synchronizer) *Handlers {
	return &Handlers{
		Parties:  parties,
		Chat:     relay,
		Playback: checkpoints,
		Hub:      hub,
		Sync:     sync,
	}
}

func caller(c *gin.Context) *domain.User {
	return &domain.User{
		ID:       domain.UserID(c.GetString("user_id")),
		Username: c.GetString("username"),
	}
}

func partyIDParam(c *gin.Context) (domain.PartyID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid party id"})
		return 0, false
	}
	return domain.PartyID(id), true
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPartyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotHost):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrPartyFull), errors.Is(err, domain.ErrPartyEnded):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("module", "adapters.http").Msg("request failed")
		c.JSON(status, gin.H{"success": false, "message": "internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "message": err.Error()})
}

type createRequest struct {
	MovieID         string     `json:"movieId"`
	Title           string     `json:"title"`
	MaxParticipants int        `json:"maxParticipants"`
	IsPublic        bool       `json:"isPublic"`
	ScheduledTime   *time.Time `json:"scheduledTime"`
}

func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	p, err := h.Parties.Create(c.Request.Context(), caller(c), req.MovieID, domain.CreateOptions{
		Title:           req.Title,
		MaxParticipants: req.MaxParticipants,
		IsPublic:        req.IsPublic,
		ScheduledAt:     req.ScheduledTime,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (h *Handlers) Join(c *gin.Context) {
	code := domain.PartyCode(c.Param("code"))
	p, err := h.Parties.Join(c.Request.Context(), code, caller(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

func (h *Handlers) GetByID(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	details, err := h.Parties.Details(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, details)
}

func (h *Handlers) GetByCode(c *gin.Context) {
	details, err := h.Parties.DetailsByCode(c.Request.Context(), domain.PartyCode(c.Param("code")))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, details)
}

func (h *Handlers) Start(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	if err := h.Parties.Start(c.Request.Context(), id, caller(c).ID); err != nil {
		fail(c, err)
		return
	}
	h.Hub.PartyUpdated(id, gin.H{"id": id, "status": domain.PartyActive})
	ok(c, gin.H{"message": "party started"})
}

func (h *Handlers) Pause(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	if err := h.Parties.Pause(c.Request.Context(), id, caller(c).ID); err != nil {
		fail(c, err)
		return
	}
	h.Hub.PartyUpdated(id, gin.H{"id": id, "status": domain.PartyPaused})
	ok(c, gin.H{"message": "party paused"})
}

func (h *Handlers) End(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	if err := h.Parties.End(c.Request.Context(), id, caller(c).ID); err != nil {
		fail(c, err)
		return
	}
	h.Hub.PartyEnded(id, "host_ended")
	h.Sync.Forget(id)
	ok(c, gin.H{"message": "party ended"})
}

func (h *Handlers) Leave(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	if err := h.Parties.Leave(c.Request.Context(), id, caller(c).ID); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "left party"})
}

func (h *Handlers) ListMine(c *gin.Context) {
	parties, err := h.Parties.ListForUser(c.Request.Context(), caller(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, parties)
}

func (h *Handlers) ListPublic(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	parties, err := h.Parties.ListPublic(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, parties)
}

func (h *Handlers) Messages(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	before, _ := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)

	msgs, err := h.Chat.History(c.Request.Context(), id, limit, domain.MessageID(before))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, msgs)
}

type sendMessageRequest struct {
	Message     string             `json:"message"`
	MessageType domain.MessageKind `json:"messageType"`
}

func (h *Handlers) SendMessage(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	msg, err := h.Chat.Send(c.Request.Context(), id, caller(c), req.Message, req.MessageType)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, msg)
}

type playbackRequest struct {
	CurrentTime float64 `json:"currentTime"`
	IsPlaying   bool    `json:"isPlaying"`
}

// UpdatePlayback writes the durable checkpoint directly. The live relay
// path is the websocket; this endpoint exists for clients flushing a
// final position on exit.
func (h *Handlers) UpdatePlayback(c *gin.Context) {
	id, valid := partyIDParam(c)
	if !valid {
		return
	}
	var req playbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid body"})
		return
	}
	if err := h.Playback.Update(c.Request.Context(), id, caller(c).ID, req.CurrentTime, req.IsPlaying); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"message": "playback state updated"})
}
