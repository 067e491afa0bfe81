package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ProgressEvent is one decoded message from the progress stream or a job status poll
type ProgressEvent struct {
	Kind       string         `json:"kind"`
	JobID      string         `json:"job_id,omitempty"`
	Percent    *float64       `json:"percent,omitempty"`
	ETASeconds *float64       `json:"eta_seconds,omitempty"`
	Stage      *string        `json:"stage,omitempty"`
	Detail     *string        `json:"detail,omitempty"`
	Status     string         `json:"status,omitempty"`
	Error      string         `json:"error,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	PagesDone  *int           `json:"pages_done,omitempty"`
	PagesTotal *int           `json:"pages_total,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

var (
	successStages   = map[string]bool{"done": true, "gata": true, "complete": true, "completed": true, "finished": true}
	successStatuses = map[string]bool{"completed": true, "done": true, "success": true}
	failureMarkers  = map[string]bool{"error": true, "failed": true}
)

// ParseProgressEvent decodes a JSON object. Fields with unexpected types are ignored
// rather than rejected; only a payload that is not a JSON object is an error.
func ParseProgressEvent(data []byte) (ProgressEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return ProgressEvent{}, fmt.Errorf("failed to decode progress event: %w", err)
	}
	if raw == nil {
		return ProgressEvent{}, fmt.Errorf("failed to decode progress event: not an object")
	}

	ev := ProgressEvent{Kind: "progress"}
	if kind := firstString(raw, "type", "kind"); kind != "" {
		ev.Kind = kind
	}
	ev.JobID = firstString(raw, "job_id", "jobId")
	ev.Status = firstString(raw, "status")
	ev.Error = firstString(raw, "error")
	ev.Percent = firstNumber(raw, "percent", "progress")
	ev.ETASeconds = firstNumber(raw, "eta_seconds", "etaSeconds", "eta")
	if s, ok := raw["stage"].(string); ok {
		ev.Stage = &s
	}
	if s, ok := raw["detail"].(string); ok {
		ev.Detail = &s
	}
	if res, ok := raw["result"].(map[string]any); ok {
		ev.Result = res
	}
	ev.PagesDone = intPtr(firstNumber(raw, "pages_done"))
	ev.PagesTotal = intPtr(firstNumber(raw, "pages_total"))
	return ev, nil
}

// Terminal reports whether the event ends a job and, if so, whether it failed
func (e ProgressEvent) Terminal() (terminal bool, failed bool) {
	status := strings.ToLower(e.Status)
	stage := ""
	if e.Stage != nil {
		stage = strings.ToLower(*e.Stage)
	}
	if e.Error != "" || failureMarkers[status] || failureMarkers[stage] {
		return true, true
	}
	if successStatuses[status] || successStages[stage] {
		return true, false
	}
	if e.Percent != nil && *e.Percent >= 100 {
		return true, false
	}
	return false, false
}

// FailureMessage is the error detail recorded for a failed terminal event
func (e ProgressEvent) FailureMessage() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Detail != nil && *e.Detail != "" {
		return *e.Detail
	}
	return DefaultFailureMessage
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := raw[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func firstNumber(raw map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		if f, ok := raw[k].(float64); ok {
			return &f
		}
	}
	return nil
}

func intPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}
