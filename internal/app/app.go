package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/api"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/config"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/credentials"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/database"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/logging"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/health"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/history"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/progress"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/queue"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/transport"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Options adjust how the application is assembled
type Options struct {
	// ForceOffline routes every submission to the simulated pipeline
	ForceOffline bool
}

// App holds the wired services shared by the CLI, control API and desktop shell
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Client    *api.Client
	Health    *health.Service
	Router    *progress.Router
	Listener  *progress.Listener
	Events    *queue.EventBus
	History   *history.Service
	Transport *transport.Switch
	Queue     *queue.Service

	opts Options

	mu        sync.Mutex
	runCtx    context.Context
	streaming atomic.Bool
}

var (
	// ErrStreamOffline is returned when a stream is requested in offline mode
	ErrStreamOffline = errors.New("progress stream is not used offline")
	// ErrNotStarted is returned when the stream is requested before Start
	ErrNotStarted = errors.New("application not started")
)

// New assembles the application from configuration
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	client := api.NewClient(api.Options{
		BaseURL:    cfg.API.BaseURL,
		Token:      credentials.ResolveToken(cfg.API.Token),
		Timeout:    cfg.API.Timeout,
		StreamPath: cfg.Stream.Path,
	})

	db, err := database.Init(cfg.Database.URL, logging.Debug())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	monitor := health.NewService(client, cfg.Health.Schedule, cfg.Health.Timeout)
	var online transport.HealthSource = monitor
	if opts.ForceOffline {
		online = transport.StaticHealth(false)
	}

	router := progress.NewRouter()
	events := queue.NewEventBus(500)
	hist := history.NewService(db)
	sw := transport.NewSwitch(client, transport.NewSimulated(cfg.Queue.OfflineDelay), online)

	a := &App{
		Config:    cfg,
		DB:        db,
		Client:    client,
		Health:    monitor,
		Router:    router,
		Listener:  progress.NewListener(client, router),
		Events:    events,
		History:   hist,
		Transport: sw,
		Queue: queue.NewService(sw, router, queue.Options{
			StallTimeout: cfg.Queue.StallTimeout,
			PollInterval: cfg.Queue.PollInterval,
			Notifier:     queue.Notifiers{events, hist},
		}),
		opts: opts,
	}

	log.WithFields(log.Fields{
		"base_url": cfg.API.BaseURL,
		"offline":  opts.ForceOffline,
	}).Debug("Application assembled")
	return a, nil
}

// Offline reports whether submissions are forced to the simulated pipeline
func (a *App) Offline() bool {
	return a.opts.ForceOffline
}

// Start begins health monitoring and opens the progress stream in the background.
// A new stream session is also opened whenever the backend comes back online.
func (a *App) Start(ctx context.Context) error {
	if a.opts.ForceOffline {
		return nil
	}
	a.mu.Lock()
	a.runCtx = ctx
	a.mu.Unlock()

	a.Health.OnChange(func(online bool) {
		if online {
			_ = a.ReconnectStream()
		}
	})
	if err := a.Health.Start(); err != nil {
		return err
	}
	return a.ReconnectStream()
}

// ReconnectStream opens a new progress stream session under the context given
// to Start. It is a no-op while a session is already open.
func (a *App) ReconnectStream() error {
	if a.opts.ForceOffline {
		return ErrStreamOffline
	}
	a.mu.Lock()
	ctx := a.runCtx
	a.mu.Unlock()
	if ctx == nil {
		return ErrNotStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !a.streaming.CompareAndSwap(false, true) {
		return nil
	}
	go func() {
		defer a.streaming.Store(false)
		_ = a.runListener(ctx)
	}()
	log.Debug("Progress stream session requested")
	return nil
}

// StreamConnected reports whether a progress stream session is open
func (a *App) StreamConnected() bool {
	return a.Listener.Connected()
}

// RunListener holds the progress stream open until it ends or ctx is cancelled.
// A dropped stream is reported, not reopened. It returns at once when another
// session is already running.
func (a *App) RunListener(ctx context.Context) error {
	if !a.streaming.CompareAndSwap(false, true) {
		return nil
	}
	defer a.streaming.Store(false)
	return a.runListener(ctx)
}

func (a *App) runListener(ctx context.Context) error {
	err := a.Listener.Run(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case errors.Is(err, progress.ErrStreamClosed):
		log.Warn("Progress stream closed; in-flight jobs will no longer report progress")
	default:
		log.WithError(err).Warn("Progress stream unavailable")
	}
	return err
}

// Close stops background work and releases the database
func (a *App) Close() error {
	if a.Health != nil {
		a.Health.Stop()
	}
	if a.History != nil {
		a.History.Close()
	}
	if err := database.Close(a.DB); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}
