package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Accepts "@every 30s", 5-field and 6-field (with seconds) expressions
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a cron expression
func ValidateSchedule(spec string) error {
	if _, err := scheduleParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid health schedule %q: %w", spec, err)
	}
	return nil
}

// Checker probes the backend
type Checker interface {
	Health(ctx context.Context) (bool, error)
}

// Status is the last known health answer
type Status struct {
	Online    bool      `json:"online"`
	Checked   bool      `json:"checked"`
	LastCheck time.Time `json:"last_check,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Label renders the status the way the UI shows it
func (s Status) Label() string {
	switch {
	case !s.Checked:
		return "checking"
	case s.Online:
		return "online"
	default:
		return "offline"
	}
}

// Service polls the backend health endpoint on a cron schedule and keeps an
// online flag. It reports offline until the first check completes.
type Service struct {
	checker  Checker
	schedule string
	timeout  time.Duration
	cron     *cron.Cron

	online atomic.Bool

	mu       sync.RWMutex
	status   Status
	onChange []func(online bool)
}

// NewService creates a health monitor
func NewService(checker Checker, schedule string, timeout time.Duration) *Service {
	if schedule == "" {
		schedule = "@every 30s"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{
		checker:  checker,
		schedule: schedule,
		timeout:  timeout,
		cron:     cron.New(cron.WithParser(scheduleParser)),
	}
}

// OnChange registers a callback fired when the online flag flips.
// Callbacks run in registration order on the checking goroutine.
func (s *Service) OnChange(fn func(online bool)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.onChange = append(s.onChange, fn)
	s.mu.Unlock()
}

// Start schedules the periodic check and runs the first one in the background
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() {
		s.Check(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule health check: %w", err)
	}
	s.cron.Start()
	go s.Check(context.Background())

	log.WithField("schedule", s.schedule).Debug("Health monitor started")
	return nil
}

// Stop gracefully stops the scheduler
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Check probes the backend once and updates the flag
func (s *Service) Check(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	online, err := s.checker.Health(ctx)
	if err != nil {
		online = false
	}

	s.mu.Lock()
	previous := s.status
	s.status = Status{Online: online, Checked: true, LastCheck: time.Now()}
	if err != nil {
		s.status.LastError = err.Error()
	}
	callbacks := s.onChange
	s.mu.Unlock()

	s.online.Store(online)
	if !previous.Checked || previous.Online != online {
		fields := log.Fields{"online": online}
		if err != nil {
			fields["error"] = err.Error()
		}
		log.WithFields(fields).Info("Backend health changed")
		for _, fn := range callbacks {
			fn(online)
		}
	}
	return online
}

// Online implements transport.HealthSource
func (s *Service) Online() bool {
	return s.online.Load()
}

// Status returns the last check result
func (s *Service) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}
