package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/services/progress"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/transport"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Service owns the work queue and drives one batch at a time through the transport.
// It is the only writer of item status.
type Service struct {
	transport    transport.Transport
	router       *progress.Router
	notifier     Notifier
	stallTimeout time.Duration
	pollInterval time.Duration
	now          func() time.Time
	newID        func() string

	mu      sync.RWMutex
	items   []*models.QueueItem
	running bool
	batchID string
	done    chan struct{}
	results *Aggregator
}

type submission struct {
	outcome transport.Outcome
	err     error
}

// NewService creates a new queue service
func NewService(t transport.Transport, router *progress.Router, opts Options) *Service {
	if router == nil {
		router = progress.NewRouter()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = Notifiers{}
	}
	done := make(chan struct{})
	close(done)

	return &Service{
		transport:    t,
		router:       router,
		notifier:     notifier,
		stallTimeout: opts.StallTimeout,
		pollInterval: opts.PollInterval,
		now:          time.Now,
		newID:        uuid.NewString,
		done:         done,
		results:      NewAggregator(),
	}
}

// Enqueue appends a pending item. The source must be non-empty.
func (s *Service) Enqueue(service string, src models.Source, fields map[string]string) (models.QueueItem, error) {
	item, err := models.NewQueueItem(s.newID(), service, src, fields, s.now())
	if err != nil {
		return models.QueueItem{}, err
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	snapshot := item.Clone()
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"item_id": item.ID,
		"service": service,
		"source":  item.Label,
	}).Debug("Item enqueued")
	return snapshot, nil
}

// Remove deletes a pending item. Items that already started are left untouched.
func (s *Service) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, it := range s.items {
		if it.ID != id {
			continue
		}
		if it.Status != models.StatusPending {
			return false
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		return true
	}
	return false
}

// Items returns a snapshot of the queue in insertion order
func (s *Service) Items() []models.QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.QueueItem, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	return out
}

// Snapshot returns the queue together with the batch state
func (s *Service) Snapshot() Snapshot {
	items := s.Items()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{BatchID: s.batchID, Running: s.running, Items: items}
}

// Running reports whether a batch is in progress
func (s *Service) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Results returns the aggregated results of the current or last batch
func (s *Service) Results() ResultSet {
	return s.results.Results()
}

// Done is closed when the current batch finishes. With no batch running it is already closed.
func (s *Service) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.done
}

// SubmitAll processes every item pending at call time, in insertion order, and
// returns their terminal outcomes. Items enqueued meanwhile wait for the next batch.
func (s *Service) SubmitAll(ctx context.Context) ([]models.QueueItem, error) {
	batchID, ids, err := s.begin()
	if err != nil {
		return nil, err
	}
	return s.run(ctx, batchID, ids), nil
}

// Start runs SubmitAll in the background and returns the batch id
func (s *Service) Start(ctx context.Context) (string, error) {
	batchID, ids, err := s.begin()
	if err != nil {
		return "", err
	}
	go s.run(ctx, batchID, ids)
	return batchID, nil
}

func (s *Service) begin() (string, []string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", nil, ErrBatchRunning
	}

	var (
		ids       []string
		snapshots []models.QueueItem
	)
	for _, it := range s.items {
		if it.Status == models.StatusPending {
			ids = append(ids, it.ID)
			snapshots = append(snapshots, it.Clone())
		}
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return "", nil, ErrQueueEmpty
	}

	batchID := s.newID()
	s.running = true
	s.batchID = batchID
	s.done = make(chan struct{})
	s.results.Reset(batchID)
	s.mu.Unlock()

	log.WithFields(log.Fields{"batch_id": batchID, "items": len(ids)}).Info("Batch started")
	s.notifier.BatchStarted(batchID, snapshots)
	return batchID, ids, nil
}

func (s *Service) run(ctx context.Context, batchID string, ids []string) []models.QueueItem {
	logger := log.WithField("batch_id", batchID)

	for _, id := range ids {
		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Batch cancelled, remaining items stay pending")
			break
		}
		item, ok := s.claim(batchID, id)
		if !ok {
			continue
		}
		final := s.process(ctx, batchID, item)
		s.results.Append(final)
	}

	results := s.results.Complete()
	s.finish()

	completed, failed := s.results.Counts()
	logger.WithFields(log.Fields{"completed": completed, "failed": failed}).Info("Batch finished")
	s.notifier.BatchCompleted(batchID, results)
	return results
}

// claim moves a still-pending item to uploading
func (s *Service) claim(batchID, id string) (models.QueueItem, bool) {
	s.mu.Lock()
	it := s.find(id)
	if it == nil || it.Status != models.StatusPending {
		s.mu.Unlock()
		return models.QueueItem{}, false
	}
	if err := it.Transition(models.StatusUploading, s.now()); err != nil {
		s.mu.Unlock()
		return models.QueueItem{}, false
	}
	snapshot := it.Clone()
	s.mu.Unlock()

	s.notifier.ItemUpdated(batchID, snapshot)
	return snapshot, true
}

// finish drops terminal items from the queue and releases the batch slot
func (s *Service) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	for _, it := range s.items {
		if !it.Status.IsTerminal() {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept
	s.running = false
	close(s.done)
}

func (s *Service) process(ctx context.Context, batchID string, item models.QueueItem) models.QueueItem {
	logger := log.WithFields(log.Fields{
		"batch_id": batchID,
		"item_id":  item.ID,
		"service":  item.Service,
	})

	sub := s.router.Activate(item.ID)
	defer sub.Close()

	done := make(chan submission, 1)
	go func() {
		out, err := transport.Submit(ctx, s.transport, item)
		done <- submission{outcome: out, err: err}
	}()

	for {
		select {
		case <-sub.Ready():
			s.applyEvents(batchID, item.ID, sub.Drain(), false)

		case res := <-done:
			s.applyEvents(batchID, item.ID, sub.Drain(), false)

			if res.err != nil {
				logger.WithError(res.err).Warn("Item failed")
				return s.finalize(batchID, item.ID, func(it *models.QueueItem) error {
					return it.Fail(failureMessage(res.err), s.now())
				})
			}
			if !res.outcome.Async() {
				logger.Info("Item completed")
				return s.finalize(batchID, item.ID, func(it *models.QueueItem) error {
					return it.Complete(res.outcome.Result, s.now())
				})
			}

			jobID := res.outcome.JobID
			sub.Bind(jobID)
			s.finalize(batchID, item.ID, func(it *models.QueueItem) error {
				return it.MarkProcessing(jobID, s.now())
			})
			logger.WithField("job_id", jobID).Info("Item accepted as background job")
			return s.await(ctx, batchID, item.ID, jobID, sub)

		case <-ctx.Done():
			return s.snapshotOf(item.ID)
		}
	}
}

// await waits for a terminal progress event, a terminal poll answer or the stall timeout
func (s *Service) await(ctx context.Context, batchID, id, jobID string, sub *progress.Subscription) models.QueueItem {
	logger := log.WithFields(log.Fields{"batch_id": batchID, "item_id": id, "job_id": jobID})

	var stallC <-chan time.Time
	var stall *time.Timer
	if s.stallTimeout > 0 {
		stall = time.NewTimer(s.stallTimeout)
		defer stall.Stop()
		stallC = stall.C
	}

	var pollC <-chan time.Time
	poller, canPoll := s.transport.(transport.Poller)
	if canPoll && s.pollInterval > 0 {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		pollC = ticker.C
	}

	for {
		select {
		case <-sub.Ready():
			events := sub.Drain()
			if s.applyEvents(batchID, id, events, true) {
				logger.Info("Background job finished")
				return s.snapshotOf(id)
			}
			if stall != nil && len(events) > 0 {
				stall.Reset(s.stallTimeout)
			}

		case <-pollC:
			ev, err := poller.JobStatus(ctx, jobID)
			if err != nil {
				logger.WithError(err).Debug("Job status poll failed")
				continue
			}
			if s.applyEvents(batchID, id, []models.ProgressEvent{ev}, true) {
				logger.Info("Background job finished")
				return s.snapshotOf(id)
			}

		case <-stallC:
			logger.Warn("Background job stalled")
			return s.finalize(batchID, id, func(it *models.QueueItem) error {
				return it.Fail(fmt.Sprintf("job stalled: no progress within %s", s.stallTimeout), s.now())
			})

		case <-ctx.Done():
			return s.snapshotOf(id)
		}
	}
}

// applyEvents folds events into the item. With honorTerminal set, the first terminal
// event completes or fails the item and the rest are ignored.
func (s *Service) applyEvents(batchID, id string, events []models.ProgressEvent, honorTerminal bool) bool {
	if len(events) == 0 {
		return false
	}

	s.mu.Lock()
	it := s.find(id)
	if it == nil {
		s.mu.Unlock()
		return false
	}

	changed, terminal := false, false
	for _, ev := range events {
		if honorTerminal {
			if isTerminal, failed := ev.Terminal(); isTerminal {
				it.ApplyProgress(ev)
				var err error
				if failed {
					err = it.Fail(ev.FailureMessage(), s.now())
				} else {
					err = it.Complete(models.NewResult(ev.Result), s.now())
				}
				terminal = err == nil
				changed = true
				break
			}
		}
		if it.ApplyProgress(ev) {
			changed = true
		}
	}
	snapshot := it.Clone()
	s.mu.Unlock()

	if changed {
		s.notifier.ItemUpdated(batchID, snapshot)
	}
	return terminal
}

// finalize applies fn under the lock and publishes the result
func (s *Service) finalize(batchID, id string, fn func(it *models.QueueItem) error) models.QueueItem {
	s.mu.Lock()
	it := s.find(id)
	if it == nil {
		s.mu.Unlock()
		return models.QueueItem{ID: id}
	}
	err := fn(it)
	snapshot := it.Clone()
	s.mu.Unlock()

	if err != nil {
		log.WithError(err).WithField("item_id", id).Error("Failed to update item")
		return snapshot
	}
	s.notifier.ItemUpdated(batchID, snapshot)
	return snapshot
}

func (s *Service) snapshotOf(id string) models.QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if it := s.find(id); it != nil {
		return it.Clone()
	}
	return models.QueueItem{ID: id}
}

// find must be called with s.mu held
func (s *Service) find(id string) *models.QueueItem {
	for _, it := range s.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

func failureMessage(err error) string {
	var pf *models.ProcessingFailed
	if errors.As(err, &pf) {
		return pf.Message
	}
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return models.DefaultFailureMessage
}
