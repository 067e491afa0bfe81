package desktop

import (
	"context"
	"fmt"
	"strings"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/app"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/health"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/queue"

	log "github.com/sirupsen/logrus"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Frontend event names
const (
	EventItem    = "queue:item"
	EventBatch   = "queue:batch"
	EventBackend = "backend:status"
)

// App struct - desktop shell state bound to the frontend
type App struct {
	ctx    context.Context // wails runtime context, nil until startup
	runCtx context.Context
	cancel context.CancelFunc
	core   *app.App
}

// BackendStatus is what the status bar shows
type BackendStatus struct {
	Label           string        `json:"label"`
	Health          health.Status `json:"health"`
	Offline         bool          `json:"offline"`
	StreamConnected bool          `json:"stream_connected"`
}

// NewApp creates a new App application struct
func NewApp(core *app.App) *App {
	runCtx, cancel := context.WithCancel(context.Background())
	return &App{core: core, runCtx: runCtx, cancel: cancel}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	log.Info("Application starting up...")

	a.core.Health.OnChange(func(online bool) {
		a.emit(EventBackend, a.BackendStatus())
	})
	if err := a.core.Start(a.runCtx); err != nil {
		log.WithError(err).Warn("Failed to start background services")
	}
	go a.forwardEvents(a.runCtx)

	log.Info("Startup complete")
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	log.Info("Application shutting down...")
	a.cancel()
	if err := a.core.Close(); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
	log.Info("Shutdown complete")
}

// forwardEvents relays queue events to the frontend
func (a *App) forwardEvents(ctx context.Context) {
	wake, cancel := a.core.Events.Subscribe()
	defer cancel()

	last := a.core.Events.LastSeq()
	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
			for _, ev := range a.core.Events.Since(last) {
				if ev.Type == queue.EventItemUpdated {
					a.emit(EventItem, ev)
				} else {
					a.emit(EventBatch, ev)
				}
				last = ev.Seq
			}
		}
	}
}

func (a *App) emit(name string, payload interface{}) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, name, payload)
}

// ====================================================================================
// WAILS-BOUND METHODS - Exposed to Frontend
// ====================================================================================

// Queue Methods

// ListServices returns the processing service catalog
func (a *App) ListServices() []models.Service {
	return models.Services
}

// EnqueueFile reads a local file and adds it to the queue
func (a *App) EnqueueFile(service, path string, fields map[string]string) (models.QueueItem, error) {
	svc, err := models.LookupService(service)
	if err != nil {
		return models.QueueItem{}, err
	}
	file, err := models.LoadLocalFile(path)
	if err != nil {
		return models.QueueItem{}, err
	}
	if err := svc.ValidateSource(file); err != nil {
		return models.QueueItem{}, err
	}
	return a.core.Queue.Enqueue(svc.Key, file, fields)
}

// EnqueueURL adds a video link to the queue
func (a *App) EnqueueURL(service, url string, fields map[string]string) (models.QueueItem, error) {
	svc, err := models.LookupService(service)
	if err != nil {
		return models.QueueItem{}, err
	}
	ref, err := models.NewRemoteReference(url)
	if err != nil {
		return models.QueueItem{}, err
	}
	if err := svc.ValidateSource(ref); err != nil {
		return models.QueueItem{}, err
	}
	return a.core.Queue.Enqueue(svc.Key, ref, fields)
}

// RemoveItem drops a pending item
func (a *App) RemoveItem(id string) bool {
	return a.core.Queue.Remove(id)
}

// QueueItems returns the current queue
func (a *App) QueueItems() queue.Snapshot {
	return a.core.Queue.Snapshot()
}

// SubmitAll starts a batch in the background and returns its id
func (a *App) SubmitAll() (string, error) {
	return a.core.Queue.Start(a.runCtx)
}

// Results returns the outcomes of the current or last batch
func (a *App) Results() queue.ResultSet {
	return a.core.Queue.Results()
}

// Updates returns queue events newer than since, for frontends that poll
func (a *App) Updates(since int64) []queue.Event {
	return a.core.Events.Since(since)
}

// Status Methods

// BackendStatus reports remote service reachability
func (a *App) BackendStatus() BackendStatus {
	st := a.core.Health.Status()
	label := st.Label()
	if a.core.Offline() {
		label = "offline"
	}
	return BackendStatus{
		Label:           label,
		Health:          st,
		Offline:         a.core.Offline() || !a.core.Transport.Online(),
		StreamConnected: a.core.Listener.Connected(),
	}
}

// ReconnectStream opens a new progress stream session when the previous one
// ended or never connected
func (a *App) ReconnectStream() error {
	if err := a.core.ReconnectStream(); err != nil {
		return err
	}
	a.emit(EventBackend, a.BackendStatus())
	return nil
}

// History Methods

// ListHistory returns recent outcomes, filtered when query is set
func (a *App) ListHistory(query string, limit int) ([]models.ItemRecord, error) {
	if strings.TrimSpace(query) != "" {
		return a.core.History.Search(query, limit)
	}
	return a.core.History.List(limit)
}

// PickFiles opens a native dialog filtered to the service's extensions
func (a *App) PickFiles(service string) ([]string, error) {
	if a.ctx == nil {
		return nil, fmt.Errorf("desktop runtime not started")
	}
	svc, err := models.LookupService(service)
	if err != nil {
		return nil, err
	}

	patterns := make([]string, 0, len(svc.Extensions))
	for _, ext := range svc.Extensions {
		patterns = append(patterns, "*."+ext)
	}
	return runtime.OpenMultipleFilesDialog(a.ctx, runtime.OpenDialogOptions{
		Title: fmt.Sprintf("Select files for %s", svc.Title),
		Filters: []runtime.FileFilter{{
			DisplayName: svc.Title,
			Pattern:     strings.Join(patterns, ";"),
		}},
	})
}
