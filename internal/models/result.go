package models

import (
	"fmt"
	"math"
	"strings"
)

// ArtifactKind names a downloadable output of a finished job
type ArtifactKind string

const (
	ArtifactMedia      ArtifactKind = "media"
	ArtifactSubtitle   ArtifactKind = "subtitle"
	ArtifactSummary    ArtifactKind = "summary"
	ArtifactTranscript ArtifactKind = "transcript"
)

// Artifact is a relative download link reported by the remote service
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	URL  string       `json:"url"`
}

// Result is the payload of a completed item
type Result struct {
	Payload   map[string]any `json:"payload"`
	Artifacts []Artifact     `json:"artifacts"`
}

// Payload keys that carry download links, in lookup order
var artifactKeys = []struct {
	key  string
	kind ArtifactKind
}{
	{"downloadUrl", ArtifactMedia},
	{"download_url", ArtifactMedia},
	{"video_file", ArtifactMedia},
	{"subtitleUrl", ArtifactSubtitle},
	{"subtitle_file", ArtifactSubtitle},
	{"summaryUrl", ArtifactSummary},
	{"summary_file", ArtifactSummary},
	{"transcript_file", ArtifactTranscript},
}

// NewResult wraps a response body and extracts its artifacts
func NewResult(payload map[string]any) *Result {
	if payload == nil {
		payload = map[string]any{}
	}
	r := &Result{Payload: payload}
	seen := make(map[string]bool)
	for _, ak := range artifactKeys {
		v, ok := payload[ak.key].(string)
		if !ok || v == "" || seen[v] {
			continue
		}
		seen[v] = true
		r.Artifacts = append(r.Artifacts, Artifact{Kind: ak.kind, URL: v})
	}
	return r
}

// Artifact returns the first artifact of the given kind
func (r *Result) Artifact(kind ArtifactKind) (Artifact, bool) {
	if r == nil {
		return Artifact{}, false
	}
	for _, a := range r.Artifacts {
		if a.Kind == kind {
			return a, true
		}
	}
	return Artifact{}, false
}

// Summary returns a short human readable description of the payload
func (r *Result) Summary() string {
	if r == nil {
		return ""
	}
	for _, key := range []string{"summary", "message", "originalFile", "original_file"} {
		if v, ok := r.Payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// AbsoluteURL resolves a relative artifact link against the API base URL
func AbsoluteURL(baseURL, link string) string {
	if link == "" || strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return fmt.Sprintf("%s/%s", strings.TrimSuffix(baseURL, "/"), strings.TrimPrefix(link, "/"))
}

// FormatETA renders seconds as "Mm SSs"; nil or negative values render as an empty string
func FormatETA(seconds *float64) string {
	if seconds == nil || *seconds < 0 || math.IsNaN(*seconds) {
		return ""
	}
	total := int(math.Round(*seconds))
	return fmt.Sprintf("%dm %02ds", total/60, total%60)
}
