package queue

import (
	"errors"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
)

var (
	// ErrBatchRunning is returned when a batch is started while another is in progress
	ErrBatchRunning = errors.New("a batch is already running")
	// ErrQueueEmpty is returned when there are no pending items to submit
	ErrQueueEmpty = errors.New("no pending items in queue")
)

// Notifier observes item and batch changes. Implementations must not block.
type Notifier interface {
	BatchStarted(batchID string, items []models.QueueItem)
	ItemUpdated(batchID string, item models.QueueItem)
	BatchCompleted(batchID string, results []models.QueueItem)
}

// Notifiers fans out to several observers
type Notifiers []Notifier

func (ns Notifiers) BatchStarted(batchID string, items []models.QueueItem) {
	for _, n := range ns {
		n.BatchStarted(batchID, items)
	}
}

func (ns Notifiers) ItemUpdated(batchID string, item models.QueueItem) {
	for _, n := range ns {
		n.ItemUpdated(batchID, item)
	}
}

func (ns Notifiers) BatchCompleted(batchID string, results []models.QueueItem) {
	for _, n := range ns {
		n.BatchCompleted(batchID, results)
	}
}

// Options tunes a Service
type Options struct {
	// StallTimeout fails a processing item that receives no progress for this long. Zero disables it.
	StallTimeout time.Duration
	// PollInterval enables job status polling when the transport supports it. Zero disables it.
	PollInterval time.Duration
	Notifier     Notifier
}

// Snapshot is a point-in-time view of the queue
type Snapshot struct {
	BatchID string             `json:"batch_id,omitempty"`
	Running bool               `json:"running"`
	Items   []models.QueueItem `json:"items"`
}

// ResultSet is the aggregated outcome of the current or last batch
type ResultSet struct {
	BatchID string             `json:"batch_id,omitempty"`
	Done    bool               `json:"done"`
	Items   []models.QueueItem `json:"items"`
}
