// Package api exposes the engine over HTTP: command execution, session
// lifecycle, and execution status endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nullfox-coder/NatanAI/pkg/config"
	"github.com/nullfox-coder/NatanAI/pkg/engine"
	"github.com/nullfox-coder/NatanAI/pkg/logging"
	"github.com/nullfox-coder/NatanAI/pkg/session"
)

// Server is the HTTP front end over the execution engine.
type Server struct {
	engine   *engine.Engine
	router   *gin.Engine
	http     *http.Server
	settings config.ServerSettings
	log      *logging.Logger
}

// NewServer builds the router and binds all endpoints.
func NewServer(eng *engine.Engine, settings config.ServerSettings, log *logging.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(settings.CORSOrigins) == 1 && settings.CORSOrigins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = settings.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		engine:   eng,
		router:   router,
		settings: settings,
		log:      log,
	}
	s.bindRoutes()
	return s
}

func (s *Server) bindRoutes() {
	s.router.GET("/health", s.health)

	s.router.POST("/commands", s.executeCommand)

	sessions := s.router.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("", s.listSessions)
	sessions.GET("/:id", s.getSession)
	sessions.DELETE("/:id", s.deleteSession)
	sessions.GET("/:id/status", s.sessionStatus)
	sessions.GET("/:id/history", s.sessionHistory)
}

// Router exposes the underlying handler, mostly for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.settings.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if s.log != nil {
		s.log.Infof("listening on %s", s.settings.Addr)
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type commandRequest struct {
	Command   string `json:"command" binding:"required"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

func (s *Server) executeCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := s.engine.ExecuteCommand(c.Request.Context(), req.Command, req.SessionID, req.UserID)
	c.JSON(http.StatusOK, result)
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

func sessionView(sess *session.Session) gin.H {
	return gin.H{
		"id":           sess.ID,
		"user_id":      sess.UserID,
		"created_at":   sess.CreatedAt,
		"last_active":  sess.LastActive,
		"last_command": sess.LastCommand,
	}
}

func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	// The body is optional; an empty one creates an anonymous session.
	_ = c.ShouldBindJSON(&req)

	sess := s.engine.Sessions().Create(req.UserID)
	c.JSON(http.StatusCreated, sessionView(sess))
}

func (s *Server) listSessions(c *gin.Context) {
	var views []gin.H
	if userID := c.Query("user_id"); userID != "" {
		for _, sess := range s.engine.Sessions().ListByUser(userID) {
			views = append(views, sessionView(sess))
		}
	} else {
		for _, sess := range s.engine.Sessions().ListActive() {
			views = append(views, sessionView(sess))
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": views, "count": len(views)})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.engine.Sessions().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	view := sessionView(sess)
	view["last_result"] = sess.LastResult
	c.JSON(http.StatusOK, view)
}

func (s *Server) deleteSession(c *gin.Context) {
	if !s.engine.DropSession(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) sessionStatus(c *gin.Context) {
	status, ok := s.engine.Status(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no execution state for session"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) sessionHistory(c *gin.Context) {
	history := s.engine.History(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"history": history, "count": len(history)})
}
