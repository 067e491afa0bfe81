package history

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const defaultLimit = 50

type pendingRecord struct {
	batchID string
	item    models.QueueItem
}

// Service persists the outcome of processed items. Notifier callbacks only
// queue the write; a background writer stores records in arrival order.
type Service struct {
	db *gorm.DB

	mu       sync.Mutex
	idle     *sync.Cond
	pending  []pendingRecord
	inflight int
	closed   bool

	wake    chan struct{}
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewService creates a new history service and starts its writer
func NewService(db *gorm.DB) *Service {
	s := &Service{
		db:      db,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.writer()
	return s
}

func (s *Service) writer() {
	defer close(s.stopped)
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.stop:
			s.drain()
			return
		}
	}
}

func (s *Service) drain() {
	for {
		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		if len(batch) == 0 {
			return
		}

		for _, p := range batch {
			if err := s.Record(p.batchID, p.item); err != nil {
				log.WithError(err).WithField("item_id", p.item.ID).Warn("Failed to record history")
			}
		}

		s.mu.Lock()
		s.inflight -= len(batch)
		if s.inflight == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

// Flush blocks until every queued record has been written
func (s *Service) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight > 0 {
		s.idle.Wait()
	}
}

// Close writes the queued records and stops the writer. Later updates are dropped.
func (s *Service) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.stop)
		<-s.stopped
	})
}

// Record stores or updates the record for a terminal item
func (s *Service) Record(batchID string, item models.QueueItem) error {
	rec, err := models.NewItemRecord(batchID, item)
	if err != nil {
		return err
	}

	var existing models.ItemRecord
	result := s.db.Where("item_id = ?", item.ID).First(&existing)
	if result.Error != nil {
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("failed to query record: %w", result.Error)
		}
		if err := s.db.Create(rec).Error; err != nil {
			return fmt.Errorf("failed to create record: %w", err)
		}
		return nil
	}

	rec.ID = existing.ID
	rec.CreatedAt = existing.CreatedAt
	if err := s.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

// List returns the most recent records first
func (s *Service) List(limit int) ([]models.ItemRecord, error) {
	var records []models.ItemRecord
	if err := s.db.Order("created_at DESC").Limit(normalizeLimit(limit)).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Search matches the query against file, service and summary
func (s *Service) Search(query string, limit int) ([]models.ItemRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(limit)
	}
	pattern := "%" + strings.ToLower(query) + "%"

	var records []models.ItemRecord
	err := s.db.
		Where("LOWER(source_label) LIKE ? OR LOWER(service) LIKE ? OR LOWER(summary) LIKE ?", pattern, pattern, pattern).
		Order("created_at DESC").
		Limit(normalizeLimit(limit)).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search history: %w", err)
	}
	return records, nil
}

// Get returns the record for one queue item
func (s *Service) Get(itemID string) (*models.ItemRecord, error) {
	var rec models.ItemRecord
	if err := s.db.Where("item_id = ?", itemID).First(&rec).Error; err != nil {
		return nil, fmt.Errorf("failed to get record for item %s: %w", itemID, err)
	}
	return &rec, nil
}

func (s *Service) BatchStarted(batchID string, items []models.QueueItem) {}

// ItemUpdated queues items for persistence once they reach a terminal state
func (s *Service) ItemUpdated(batchID string, item models.QueueItem) {
	if !item.Status.IsTerminal() {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.WithField("item_id", item.ID).Debug("History closed, dropping record")
		return
	}
	s.pending = append(s.pending, pendingRecord{batchID: batchID, item: item})
	s.inflight++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) BatchCompleted(batchID string, results []models.QueueItem) {}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return defaultLimit
	}
	return limit
}
