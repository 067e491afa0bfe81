package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
)

// HistoryEntry is one row of the backend's processing history
type HistoryEntry struct {
	ID           int            `json:"id"`
	Service      string         `json:"service"`
	OriginalFile string         `json:"original_file"`
	DownloadURL  string         `json:"download_url"`
	Status       string         `json:"status"`
	Meta         map[string]any `json:"meta"`
	CreatedAt    string         `json:"created_at"`
}

type historyResponse struct {
	Items []HistoryEntry `json:"items"`
}

// History lists the most recent jobs recorded by the backend
func (c *Client) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return c.fetchHistory(ctx, "api/history", map[string]string{"limit": strconv.Itoa(limit)})
}

// SearchHistory filters the backend history by free text
func (c *Client) SearchHistory(ctx context.Context, query string, limit int) ([]HistoryEntry, error) {
	return c.fetchHistory(ctx, "api/history/search", map[string]string{
		"q":     query,
		"limit": strconv.Itoa(limit),
	})
}

func (c *Client) fetchHistory(ctx context.Context, endpoint string, params map[string]string) ([]HistoryEntry, error) {
	var out historyResponse
	resp, err := c.reads.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&out).
		Get(c.buildURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("failed to fetch history: %s", resp.Status())
	}
	return out.Items, nil
}

// JobStatus polls GET /api/jobs/<id> and returns it as a progress event
func (c *Client) JobStatus(ctx context.Context, jobID string) (models.ProgressEvent, error) {
	resp, err := c.reads.R().
		SetContext(ctx).
		Get(c.buildURL(fmt.Sprintf("api/jobs/%s", jobID)))
	if err != nil {
		return models.ProgressEvent{}, fmt.Errorf("failed to poll job %s: %w", jobID, err)
	}
	if !resp.IsSuccess() {
		return models.ProgressEvent{}, fmt.Errorf("failed to poll job %s: %s", jobID, resp.Status())
	}

	ev, err := models.ParseProgressEvent(resp.Body())
	if err != nil {
		return models.ProgressEvent{}, err
	}
	if ev.JobID == "" {
		ev.JobID = jobID
	}
	return ev, nil
}
