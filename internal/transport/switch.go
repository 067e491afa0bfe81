package transport

import (
	"context"
	"fmt"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	log "github.com/sirupsen/logrus"
)

// Switch routes each submission to the remote transport while the service is online
// and to the fallback otherwise. The choice is made per call.
type Switch struct {
	remote   Transport
	fallback Transport
	health   HealthSource
}

// NewSwitch creates a Switch. A nil health source means always online.
func NewSwitch(remote, fallback Transport, health HealthSource) *Switch {
	return &Switch{remote: remote, fallback: fallback, health: health}
}

// Online reports the current health answer
func (s *Switch) Online() bool {
	return s.health == nil || s.health.Online()
}

func (s *Switch) active() (Transport, bool) {
	if s.Online() || s.fallback == nil {
		return s.remote, true
	}
	return s.fallback, false
}

// SubmitLocalFile implements Transport
func (s *Switch) SubmitLocalFile(ctx context.Context, svc models.Service, file models.LocalFile, fields map[string]string) (Outcome, error) {
	t, remote := s.active()
	if !remote {
		log.WithFields(log.Fields{"service": svc.Key, "file": file.Name}).Info("Backend offline, using simulated pipeline")
	}
	return t.SubmitLocalFile(ctx, svc, file, fields)
}

// SubmitRemoteReference implements Transport
func (s *Switch) SubmitRemoteReference(ctx context.Context, svc models.Service, url string, fields map[string]string) (Outcome, error) {
	t, remote := s.active()
	if !remote {
		log.WithFields(log.Fields{"service": svc.Key, "url": url}).Info("Backend offline, using simulated pipeline")
	}
	return t.SubmitRemoteReference(ctx, svc, url, fields)
}

// JobStatus implements Poller when the remote transport does
func (s *Switch) JobStatus(ctx context.Context, jobID string) (models.ProgressEvent, error) {
	p, ok := s.remote.(Poller)
	if !ok {
		return models.ProgressEvent{}, fmt.Errorf("transport does not support job polling")
	}
	return p.JobStatus(ctx, jobID)
}
