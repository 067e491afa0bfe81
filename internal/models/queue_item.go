package models

import (
	"fmt"
	"math"
	"time"
)

// ItemStatus is the lifecycle stage of a queued work item
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusUploading  ItemStatus = "uploading"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusError      ItemStatus = "error"
)

// IsTerminal reports whether no further transitions are possible
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsActive reports whether progress events may be applied
func (s ItemStatus) IsActive() bool {
	return s == StatusUploading || s == StatusProcessing
}

// CanTransition reports whether from -> to is an allowed lifecycle step
func CanTransition(from, to ItemStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusUploading
	case StatusUploading:
		return to == StatusProcessing || to == StatusCompleted || to == StatusError
	case StatusProcessing:
		return to == StatusCompleted || to == StatusError
	default:
		return false
	}
}

// QueueItem is one unit of work: a source sent to a remote service
type QueueItem struct {
	ID              string            `json:"id"`
	Service         string            `json:"service"`
	Fields          map[string]string `json:"fields,omitempty"`
	Source          Source            `json:"-"`
	SourceKind      SourceKind        `json:"source_kind"`
	Label           string            `json:"label"`
	Status          ItemStatus        `json:"status"`
	ProgressPercent int               `json:"progress_percent"`
	ETASeconds      *float64          `json:"eta_seconds,omitempty"`
	Stage           string            `json:"stage,omitempty"`
	Detail          string            `json:"detail,omitempty"`
	JobID           string            `json:"job_id,omitempty"`
	Result          *Result           `json:"result,omitempty"`
	ErrorDetail     string            `json:"error_detail,omitempty"`
	EnqueuedAt      time.Time         `json:"enqueued_at"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	FinishedAt      *time.Time        `json:"finished_at,omitempty"`
}

// NewQueueItem creates a pending item; the source must be non-empty
func NewQueueItem(id, service string, src Source, fields map[string]string, now time.Time) (*QueueItem, error) {
	if src == nil || src.Empty() {
		return nil, &ValidationError{"source", "required"}
	}
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &QueueItem{
		ID:         id,
		Service:    service,
		Fields:     copied,
		Source:     src,
		SourceKind: src.Kind(),
		Label:      src.Label(),
		Status:     StatusPending,
		EnqueuedAt: now,
	}, nil
}

// Transition moves the item to a new status
func (it *QueueItem) Transition(to ItemStatus, now time.Time) error {
	if !CanTransition(it.Status, to) {
		return fmt.Errorf("invalid transition for item %s: %s -> %s", it.ID, it.Status, to)
	}
	if it.Status == StatusPending {
		started := now
		it.StartedAt = &started
	}
	it.Status = to
	if to.IsTerminal() {
		finished := now
		it.FinishedAt = &finished
	}
	return nil
}

// MarkProcessing records the async job handle
func (it *QueueItem) MarkProcessing(jobID string, now time.Time) error {
	if err := it.Transition(StatusProcessing, now); err != nil {
		return err
	}
	it.JobID = jobID
	return nil
}

// Complete sets the result and finishes the item
func (it *QueueItem) Complete(result *Result, now time.Time) error {
	if err := it.Transition(StatusCompleted, now); err != nil {
		return err
	}
	if result == nil {
		result = NewResult(nil)
	}
	it.Result = result
	it.ProgressPercent = 100
	it.ETASeconds = nil
	return nil
}

// Fail records the error detail and finishes the item
func (it *QueueItem) Fail(message string, now time.Time) error {
	if err := it.Transition(StatusError, now); err != nil {
		return err
	}
	if message == "" {
		message = DefaultFailureMessage
	}
	it.ErrorDetail = message
	it.ETASeconds = nil
	return nil
}

// ApplyProgress folds an event into the visible progress fields. Percent never decreases;
// non-numeric percents were already dropped at parse time. Returns true when anything changed.
func (it *QueueItem) ApplyProgress(ev ProgressEvent) bool {
	if !it.Status.IsActive() {
		return false
	}
	changed := false
	if ev.Percent != nil && !math.IsNaN(*ev.Percent) {
		p := int(math.Round(math.Max(0, math.Min(100, *ev.Percent))))
		if p > it.ProgressPercent {
			it.ProgressPercent = p
			changed = true
		}
	}
	if ev.ETASeconds != nil && *ev.ETASeconds >= 0 {
		eta := *ev.ETASeconds
		it.ETASeconds = &eta
		changed = true
	}
	if ev.Stage != nil && *ev.Stage != it.Stage {
		it.Stage = *ev.Stage
		changed = true
	}
	if ev.Detail != nil && *ev.Detail != it.Detail {
		it.Detail = *ev.Detail
		changed = true
	}
	return changed
}

// Clone returns a copy that shares no mutable state with the original
func (it *QueueItem) Clone() QueueItem {
	c := *it
	if it.Fields != nil {
		c.Fields = make(map[string]string, len(it.Fields))
		for k, v := range it.Fields {
			c.Fields[k] = v
		}
	}
	if it.ETASeconds != nil {
		eta := *it.ETASeconds
		c.ETASeconds = &eta
	}
	if it.Result != nil {
		r := *it.Result
		r.Artifacts = append([]Artifact(nil), it.Result.Artifacts...)
		c.Result = &r
	}
	return c
}
