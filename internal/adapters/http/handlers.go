package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Resonance/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type SessionRequest struct {
	Token string `json:"token"`
}

type PresenceResponse struct {
	UserID      domain.UserID `json:"userId"`
	Online      bool          `json:"online"`
	Connections int           `json:"connections"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": domain.ErrorCode(err)})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.Orch.Registry.Count(),
	})
}

// createSession verifies a token and keeps it in the cookie session so
// browsers can open the websocket without custom headers.
func (s *Server) createSession(c *gin.Context) {
	var req SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid token"})
		return
	}
	user, err := s.Auth.Authenticate(c.Request.Context(), req.Token)
	if err != nil {
		fail(c, err)
		return
	}
	sess := sessions.Default(c)
	sess.Set(sessionTokenKey, req.Token)
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (s *Server) deleteSession(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("clear session")
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listRooms(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	var rooms []*domain.VoiceRoom
	if uid := c.Query("participant"); uid != "" {
		rooms, err = s.Orch.Voice.ActiveForUser(c.Request.Context(), domain.UserID(uid))
	} else {
		rooms, err = s.Orch.Voice.ListActive(c.Request.Context(), limit)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (s *Server) getRoom(c *gin.Context) {
	room, err := s.Orch.Voice.Get(c.Request.Context(), domain.RoomID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (s *Server) presence(c *gin.Context) {
	uid := domain.UserID(c.Param("userId"))
	n := s.Orch.Presence.ConnectionCount(uid)
	c.JSON(http.StatusOK, PresenceResponse{UserID: uid, Online: n > 0, Connections: n})
}
