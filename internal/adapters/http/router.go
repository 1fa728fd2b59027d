package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/dkeye/Resonance/internal/adapters/signal"
	"github.com/dkeye/Resonance/internal/app"
	"github.com/dkeye/Resonance/internal/app/orch"
	"github.com/dkeye/Resonance/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	sessionName     = "ResonanceSessions"
	sessionTokenKey = "token"
)

// bearerToken finds the handshake credential: Authorization header, then the
// token query parameter, then the cookie session.
func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if scheme, tok, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
	}
	if q := c.Query("token"); q != "" {
		return q
	}
	if tok, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return tok
	}
	return ""
}

type Server struct {
	Orch *orch.Orchestrator
	Auth *app.Authenticator
	WS   *signal.SignalWSController
}

func SetupRouter(ctx context.Context, cfg *config.Config, srv *Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.GET("/healthz", srv.health)

	api := r.Group("/api")
	api.POST("/session", srv.createSession)
	api.DELETE("/session", srv.deleteSession)

	api.GET("/ws", func(c *gin.Context) {
		user, err := srv.Auth.Authenticate(c.Request.Context(), bearerToken(c))
		if err != nil {
			log.Info().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws handshake rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("user", string(user.ID)).Msg("ws signal endpoint hit")
		srv.WS.HandleSignal(ctx, c, user)
	})

	api.GET("/voice/rooms", srv.listRooms)
	api.GET("/voice/rooms/:id", srv.getRoom)
	api.GET("/presence/:userId", srv.presence)

	return r
}
