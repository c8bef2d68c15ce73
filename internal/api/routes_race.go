package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openrally/rallyd/internal/protocol"
)

// raceRef names a room together with the caller's token for room-level
// actions that require both.
type raceRef struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

// handleNews returns the daily challenge brief.
func (s *Server) handleNews(c *gin.Context) {
	brief, ok := s.registry.News()
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, brief)
}

// handleList returns the race list.
func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, s.registry.List())
}

// handleInfo returns a room's race configuration.
func (s *Server) handleInfo(c *gin.Context) {
	info, ok := s.registry.Info(c.Query("name"))
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, info)
}

// handleUpdateInfo replaces a room's race configuration.
func (s *Server) handleUpdateInfo(c *gin.Context) {
	var upd protocol.RaceInfoUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.UpdateInfo(upd) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStates returns a room's per-player state list.
func (s *Server) handleStates(c *gin.Context) {
	states, ok := s.registry.States(c.Query("name"))
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, states)
}

// handleUpdateState records a player-reported race state change.
func (s *Server) handleUpdateState(c *gin.Context) {
	var upd protocol.RaceUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.UpdatePlayerState(upd) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleStarted reports whether a room's race left the idle phase.
func (s *Server) handleStarted(c *gin.Context) {
	started, ok := s.registry.Started(c.Query("name"))
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"started": started})
}

// handleStart triggers a room's race. Owner only.
func (s *Server) handleStart(c *gin.Context) {
	var ref raceRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.StartRace(ref.Room, ref.Token) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleCreate creates a player-owned room and seats the creator.
func (s *Server) handleCreate(c *gin.Context) {
	var create protocol.RaceCreate
	if err := c.ShouldBindJSON(&create); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.Create(create) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleJoin seats the caller in a room.
func (s *Server) handleJoin(c *gin.Context) {
	var join protocol.RaceJoin
	if err := c.ShouldBindJSON(&join); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.Join(join) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleLeave removes the caller from a room.
func (s *Server) handleLeave(c *gin.Context) {
	var leave protocol.RaceLeave
	if err := c.ShouldBindJSON(&leave); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.Leave(leave) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleDestroy deletes a room. Owner only.
func (s *Server) handleDestroy(c *gin.Context) {
	var ref raceRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.Destroy(ref.Room, ref.Token) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handlePlayerConfig returns the caller's own race config.
func (s *Server) handlePlayerConfig(c *gin.Context) {
	cfg, ok := s.registry.PlayerConfig(c.Query("token"))
	if !ok {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// handleUpdatePlayerConfig replaces the caller's own race config.
func (s *Server) handleUpdatePlayerConfig(c *gin.Context) {
	var upd protocol.RaceConfigUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !s.registry.SetPlayerConfig(upd) {
		failRequest(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
