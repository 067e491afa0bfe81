package queue

import (
	"sync"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
)

// Aggregator collects the terminal items of one batch in submission order
type Aggregator struct {
	mu      sync.RWMutex
	batchID string
	items   []models.QueueItem
	done    bool
}

// NewAggregator creates an empty Aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Reset starts a new batch, discarding the previous results
func (a *Aggregator) Reset(batchID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.batchID = batchID
	a.items = nil
	a.done = false
}

// Append records a terminal item; non-terminal items are ignored
func (a *Aggregator) Append(item models.QueueItem) bool {
	if !item.Status.IsTerminal() {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, item)
	return true
}

// Complete marks the batch drained and returns its results
func (a *Aggregator) Complete() []models.QueueItem {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.done = true
	return append([]models.QueueItem(nil), a.items...)
}

// Results returns a copy of the collected items
func (a *Aggregator) Results() ResultSet {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return ResultSet{
		BatchID: a.batchID,
		Done:    a.done,
		Items:   append([]models.QueueItem{}, a.items...),
	}
}

// Done reports whether the batch has drained
func (a *Aggregator) Done() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.done
}

// Counts returns the number of completed and failed items
func (a *Aggregator) Counts() (completed, failed int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, it := range a.items {
		if it.Status == models.StatusCompleted {
			completed++
		} else {
			failed++
		}
	}
	return completed, failed
}
