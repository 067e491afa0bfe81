package progress

import (
	"sync"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	log "github.com/sirupsen/logrus"
)

// mailbox is an unbounded per-item event buffer. push never blocks; ready is
// signalled whenever the buffer goes from empty to non-empty.
type mailbox struct {
	mu      sync.Mutex
	pending []models.ProgressEvent
	ready   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (m *mailbox) push(ev models.ProgressEvent) {
	m.mu.Lock()
	m.pending = append(m.pending, ev)
	m.mu.Unlock()

	select {
	case m.ready <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []models.ProgressEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// Subscription receives the progress events routed to one queue item
type Subscription struct {
	itemID string
	box    *mailbox
	router *Router

	mu      sync.Mutex
	jobID   string
	claimed []string
}

// ItemID returns the queue item this subscription belongs to
func (s *Subscription) ItemID() string {
	return s.itemID
}

// Ready is signalled when events are waiting to be drained
func (s *Subscription) Ready() <-chan struct{} {
	return s.box.ready
}

// Drain returns and clears the buffered events in arrival order
func (s *Subscription) Drain() []models.ProgressEvent {
	return s.box.drain()
}

// Bind routes events tagged with jobID to this subscription
func (s *Subscription) Bind(jobID string) {
	if jobID == "" {
		return
	}
	s.mu.Lock()
	s.jobID = jobID
	s.mu.Unlock()
	s.router.bind(jobID, s)
}

func (s *Subscription) boundJob() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID
}

func (s *Subscription) claim(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.claimed {
		if id == jobID {
			return
		}
	}
	s.claimed = append(s.claimed, jobID)
}

// jobIDs returns the bound job and every job id claimed before binding
func (s *Subscription) jobIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := append([]string(nil), s.claimed...)
	if s.jobID != "" {
		ids = append(ids, s.jobID)
	}
	return ids
}

// Close detaches the subscription; later events for it are dropped
func (s *Subscription) Close() {
	s.router.release(s)
}

// retiredCap bounds how many finished job ids the router remembers
const retiredCap = 256

// Router delivers progress events to queue items. Events that carry a job id go
// to the item bound to that job; untagged events go to the active item.
// Job ids of closed subscriptions are retired: their late events are dropped.
type Router struct {
	mu      sync.Mutex
	active  *Subscription
	byJob   map[string]*Subscription
	retired map[string]struct{}
	order   []string
}

// NewRouter creates an empty Router
func NewRouter() *Router {
	return &Router{
		byJob:   make(map[string]*Subscription),
		retired: make(map[string]struct{}),
	}
}

// Activate makes itemID the single in-flight item and returns its subscription.
// A previous active subscription stays bound to its job but stops receiving untagged events.
func (r *Router) Activate(itemID string) *Subscription {
	sub := &Subscription{itemID: itemID, box: newMailbox(), router: r}
	r.mu.Lock()
	r.active = sub
	r.mu.Unlock()
	return sub
}

// ActiveItem returns the id of the in-flight item, if any
func (r *Router) ActiveItem() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.itemID
}

// Deliver routes ev and reports whether a recipient was found
func (r *Router) Deliver(ev models.ProgressEvent) bool {
	r.mu.Lock()
	target := r.resolve(ev.JobID)
	r.mu.Unlock()

	if target == nil {
		log.WithField("job_id", ev.JobID).Debug("Dropping progress event with no recipient")
		return false
	}
	target.box.push(ev)
	return true
}

// resolve must be called with r.mu held
func (r *Router) resolve(jobID string) *Subscription {
	if jobID != "" {
		if sub, ok := r.byJob[jobID]; ok {
			return sub
		}
		if _, ok := r.retired[jobID]; ok {
			return nil
		}
		// The backend may tag events before the submission response reveals the job id.
		// Only an active item that has no job yet may claim them.
		if r.active != nil && r.active.boundJob() == "" {
			r.active.claim(jobID)
			return r.active
		}
		return nil
	}
	return r.active
}

func (r *Router) bind(jobID string, sub *Subscription) {
	r.mu.Lock()
	r.byJob[jobID] = sub
	delete(r.retired, jobID)
	r.mu.Unlock()
}

func (r *Router) release(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == sub {
		r.active = nil
	}
	for id, s := range r.byJob {
		if s == sub {
			delete(r.byJob, id)
		}
	}
	for _, id := range sub.jobIDs() {
		r.retire(id)
	}
}

// retire must be called with r.mu held
func (r *Router) retire(jobID string) {
	if _, ok := r.retired[jobID]; ok {
		return
	}
	r.retired[jobID] = struct{}{}
	r.order = append(r.order, jobID)
	if len(r.order) > retiredCap {
		delete(r.retired, r.order[0])
		r.order = r.order[1:]
	}
}
