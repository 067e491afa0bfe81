package transport

import (
	"context"
	"fmt"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
)

// Outcome is what a submission returns: either an inline result or an async job handle
type Outcome struct {
	Result *models.Result
	JobID  string
}

// Async reports whether the remote side accepted the work as a background job
func (o Outcome) Async() bool {
	return o.JobID != ""
}

// Transport submits work to a processing backend
type Transport interface {
	SubmitLocalFile(ctx context.Context, svc models.Service, file models.LocalFile, fields map[string]string) (Outcome, error)
	SubmitRemoteReference(ctx context.Context, svc models.Service, url string, fields map[string]string) (Outcome, error)
}

// Poller is implemented by transports that can report job status on request
type Poller interface {
	JobStatus(ctx context.Context, jobID string) (models.ProgressEvent, error)
}

// HealthSource tells whether the remote service is reachable
type HealthSource interface {
	Online() bool
}

// StaticHealth is a fixed answer, used to force offline mode
type StaticHealth bool

func (h StaticHealth) Online() bool { return bool(h) }

// Submit validates the item against its service and dispatches on the source kind
func Submit(ctx context.Context, t Transport, item models.QueueItem) (Outcome, error) {
	svc, err := models.LookupService(item.Service)
	if err != nil {
		return Outcome{}, err
	}
	if err := svc.ValidateSource(item.Source); err != nil {
		return Outcome{}, err
	}
	fields := svc.MergeFields(item.Fields)

	switch src := item.Source.(type) {
	case models.LocalFile:
		return t.SubmitLocalFile(ctx, svc, src, fields)
	case models.RemoteReference:
		return t.SubmitRemoteReference(ctx, svc, src.URL, fields)
	default:
		return Outcome{}, fmt.Errorf("unsupported source kind %q", item.Source.Kind())
	}
}
