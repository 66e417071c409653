package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/adapters/gateway"
	router "github.com/avolkov/reelroom/internal/adapters/http"
	"github.com/avolkov/reelroom/internal/chat"
	"github.com/avolkov/reelroom/internal/config"
	"github.com/avolkov/reelroom/internal/party"
	"github.com/avolkov/reelroom/internal/playback"
	"github.com/avolkov/reelroom/internal/presence"
	"github.com/avolkov/reelroom/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("connected to database")

	parties := store.NewPartyStore(pool)
	members := store.NewMembershipStore(pool)
	checkpoints := store.NewPlaybackStore(pool)
	messages := store.NewMessageStore(pool)

	reg := presence.NewRegistry()
	hub := gateway.NewHub(reg)

	lifecycle := party.NewService(parties, members, checkpoints)
	synchronizer := playback.NewSynchronizer(parties, checkpoints, hub)
	relay := chat.NewRelay(messages, hub)

	limiter := gateway.NewRateLimiter(cfg.ChatBurst, cfg.ChatInterval)
	ws := gateway.NewController(hub, synchronizer, relay, limiter, cfg.ReadLimit)

	handlers := router.NewHandlers(lifecycle, relay, checkpoints, hub, synchronizer)
	r := router.SetupRouter(ctx, cfg, handlers, ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("reelroom server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
