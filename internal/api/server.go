package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/openrally/rallyd/internal/config"
	intnet "github.com/openrally/rallyd/internal/network"
	"github.com/openrally/rallyd/internal/protocol"
	"github.com/openrally/rallyd/internal/registry"
)

// Version is the server version reported by the version endpoint.
const Version = "1.0.0"

// Rankboard serves the all-player score ranking. Implemented by the score
// database; nil disables the endpoint.
type Rankboard interface {
	Rankboard() ([]protocol.UserScore, error)
}

// Server is the REST API server exposed to race clients and the web UI.
type Server struct {
	cfg       *config.Config
	registry  *registry.SessionRegistry
	rankboard Rankboard

	httpServer *http.Server
	router     *gin.Engine
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, reg *registry.SessionRegistry, rankboard Rankboard) *Server {
	// Set Gin mode based on log level
	if cfg.GetApp().Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		registry:  reg,
		rankboard: rankboard,
	}
}

// Start initializes and starts the API server.
func (s *Server) Start(ctx context.Context) error {
	s.router = s.buildRouter()

	addr := fmt.Sprintf("%s:%d", s.cfg.GetServer().BindAddress, s.cfg.GetServer().APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// SO_REUSEADDR for immediate rebinding after restart
	lc := intnet.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}

	log.Info().Str("addr", addr).Msg("REST API server starting")

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

// buildRouter creates the Gin router with all routes and middleware.
func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	// CORS
	allowedOrigins := s.cfg.GetApp().Security.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Must be false when AllowOrigins is "*"
		MaxAge:           12 * time.Hour,
	}))

	// Rate limiting
	rateLimiter := NewRateLimiter(s.cfg.GetApp().Security.RateLimitRPS)
	router.Use(rateLimiter.Middleware())

	api := router.Group("/api")
	{
		api.GET("/version", s.handleVersion)

		user := api.Group("/user")
		{
			user.POST("/login", s.handleLogin)
			user.POST("/heartbeat", s.handleHeartbeat)
			user.POST("/logout", s.handleLogout)
			user.GET("/score", s.handleScore)
			user.GET("/rankboard", s.handleRankboard)
		}

		race := api.Group("/race")
		{
			race.GET("/news", s.handleNews)
			race.GET("/list", s.handleList)
			race.GET("/info", s.handleInfo)
			race.PUT("/info", s.handleUpdateInfo)
			race.GET("/state", s.handleStates)
			race.PUT("/state", s.handleUpdateState)
			race.GET("/start", s.handleStarted)
			race.PUT("/start", s.handleStart)
			race.POST("/create", s.handleCreate)
			race.POST("/join", s.handleJoin)
			race.POST("/leave", s.handleLeave)
			race.POST("/destroy", s.handleDestroy)
		}

		player := api.Group("/player")
		{
			player.GET("/config", s.handlePlayerConfig)
			player.PUT("/config", s.handleUpdatePlayerConfig)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
