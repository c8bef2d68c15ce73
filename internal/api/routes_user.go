package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/protocol"
)

// failRequest rejects a request. Unknown rooms, bad tokens and missing
// permissions all surface identically so callers cannot probe for names.
func failRequest(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "request denied"})
}

// handleVersion returns the server version.
func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "rallyd",
		"version": Version,
	})
}

// handleLogin validates credentials and issues a session token.
func (s *Server) handleLogin(c *gin.Context) {
	var login protocol.UserLogin
	if err := c.ShouldBindJSON(&login); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, ok := s.registry.Login(login)
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// handleHeartbeat refreshes a session token's liveness window.
func (s *Server) handleHeartbeat(c *gin.Context) {
	var query protocol.UserQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.Heartbeat(query.Token) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleLogout ends a session.
func (s *Server) handleLogout(c *gin.Context) {
	var query protocol.UserQuery
	if err := c.ShouldBindJSON(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.Logout(query.Token) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleScore returns the caller's persisted score and license grade.
func (s *Server) handleScore(c *gin.Context) {
	score, ok := s.registry.Score(c.Query("token"))
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, score)
}

// handleRankboard returns every player ordered by score.
func (s *Server) handleRankboard(c *gin.Context) {
	if s.rankboard == nil {
		failRequest(c)
		return
	}

	board, err := s.rankboard.Rankboard()
	if err != nil {
		log.Error().Err(err).Msg("rankboard query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rankboard unavailable"})
		return
	}
	c.JSON(http.StatusOK, board)
}
