package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/avolkov/reelroom/internal/adapters/gateway"
	"github.com/avolkov/reelroom/internal/config"
)

// IdentityMiddleware attaches the verified (identity, displayName) pair
// to the request. Verification itself is an upstream capability; a
// guest identity is minted into the cookie session on first contact and
// trusted afterwards.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)

		uid, _ := s.Get("uid").(string)
		name, _ := s.Get("uname").(string)
		if uid == "" {
			uid = uuid.NewString()
			if name == "" {
				name = "guest"
			}
			s.Set("uid", uid)
			s.Set("uname", name)
			if err := s.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}

		c.Set("user_id", uid)
		c.Set("username", name)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, ws *gateway.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ReelroomSession", store))
	r.Use(IdentityMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	party := api.Group("/party")
	{
		party.POST("/create", h.Create)
		party.POST("/join/:code", h.Join)
		party.GET("/code/:code", h.GetByCode)
		party.GET("/user/parties", h.ListMine)
		party.GET("/public/list", h.ListPublic)
		party.GET("/:id", h.GetByID)
		party.GET("/:id/messages", h.Messages)
		party.POST("/:id/message", h.SendMessage)
		party.POST("/:id/start", h.Start)
		party.POST("/:id/pause", h.Pause)
		party.POST("/:id/end", h.End)
		party.POST("/:id/leave", h.Leave)
		party.POST("/:id/playback", h.UpdatePlayback)
	}

	api.GET("/ws/party", func(c *gin.Context) {
		ws.HandleWS(ctx, c)
	})

	return r
}
