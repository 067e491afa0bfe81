package transport

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
)

// Simulated stands in for the remote service while it is unreachable.
// Every submission succeeds after Delay with a synthetic result.
type Simulated struct {
	Delay time.Duration
	// FailWhen, when set, can force a failure for a given source label
	FailWhen func(label string) bool
}

// NewSimulated creates an offline transport
func NewSimulated(delay time.Duration) *Simulated {
	return &Simulated{Delay: delay}
}

// SubmitLocalFile implements Transport
func (s *Simulated) SubmitLocalFile(ctx context.Context, svc models.Service, file models.LocalFile, fields map[string]string) (Outcome, error) {
	return s.run(ctx, svc, file.Name)
}

// SubmitRemoteReference implements Transport
func (s *Simulated) SubmitRemoteReference(ctx context.Context, svc models.Service, link string, fields map[string]string) (Outcome, error) {
	return s.run(ctx, svc, link)
}

func (s *Simulated) run(ctx context.Context, svc models.Service, label string) (Outcome, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Outcome{}, models.NewProcessingFailed("", 0, ctx.Err())
		}
	}

	if s.FailWhen != nil && s.FailWhen(label) {
		return Outcome{}, models.NewProcessingFailed("", 0, nil)
	}

	return Outcome{Result: models.NewResult(map[string]any{
		"status":       "success",
		"simulated":    true,
		"service":      svc.Key,
		"originalFile": label,
		"downloadUrl":  fmt.Sprintf("/download/simulated_%s", url.PathEscape(label)),
		"message":      fmt.Sprintf("%s processed offline", label),
	})}, nil
}
