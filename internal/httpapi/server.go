package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/health"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/queue"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// QueueService is the part of queue.Service the API drives
type QueueService interface {
	Enqueue(service string, src models.Source, fields map[string]string) (models.QueueItem, error)
	Remove(id string) bool
	Snapshot() queue.Snapshot
	Results() queue.ResultSet
	Start(ctx context.Context) (string, error)
}

// HistoryStore lists persisted outcomes
type HistoryStore interface {
	List(limit int) ([]models.ItemRecord, error)
	Search(query string, limit int) ([]models.ItemRecord, error)
}

// HealthStatus exposes the backend health monitor
type HealthStatus interface {
	Status() health.Status
}

// ProgressStream reopens the backend progress stream
type ProgressStream interface {
	ReconnectStream() error
	StreamConnected() bool
}

// Deps are the collaborators behind the API. History, Health and Stream may be nil.
type Deps struct {
	Queue   QueueService
	Events  *queue.EventBus
	History HistoryStore
	Health  HealthStatus
	Stream  ProgressStream
	BaseURL string
}

// Server is the local control API for browser and script front ends
type Server struct {
	ctx    context.Context
	deps   Deps
	engine *gin.Engine
	hub    *Hub
}

// NewServer wires routes. Batches started through the API run under ctx.
func NewServer(ctx context.Context, deps Deps, allowedOrigins []string) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	engine.Use(cors.New(corsConfig(allowedOrigins)))

	s := &Server{
		ctx:    ctx,
		deps:   deps,
		engine: engine,
		hub:    NewHub(deps.Events, deps.Queue),
	}
	go s.hub.Run(ctx)

	engine.GET("/health", s.getHealth)
	engine.GET("/ws", s.hub.ServeWS)

	api := engine.Group("/api")
	{
		api.GET("/services", s.listServices)

		q := api.Group("/queue")
		{
			q.GET("", s.getQueue)
			q.POST("/files", s.enqueueFile)
			q.POST("/urls", s.enqueueURL)
			q.DELETE("/:id", s.removeItem)
			q.POST("/submit", s.submit)
		}

		api.GET("/results", s.getResults)
		api.GET("/history", s.getHistory)
		api.GET("/events", s.streamEvents)
		api.POST("/stream/reconnect", s.reconnectStream)
	}
	return s
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Last-Event-ID"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	return cfg
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("HTTP request")
	}
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on addr until the server context is cancelled
func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Control API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control API failed: %w", err)
	case <-s.ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down control API: %w", err)
		}
		return nil
	}
}
