package api

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"
	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/transport"

	"github.com/go-resty/resty/v2"
)

var (
	_ transport.Transport = (*Client)(nil)
	_ transport.Poller    = (*Client)(nil)
)

// SubmitLocalFile uploads a file as multipart {file, ...fields} to the service's upload path
func (c *Client) SubmitLocalFile(ctx context.Context, svc models.Service, file models.LocalFile, fields map[string]string) (transport.Outcome, error) {
	req := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", file.Name, file.MIMEType, bytes.NewReader(file.Data))
	if len(fields) > 0 {
		req.SetMultipartFormData(fields)
	}

	resp, err := req.Post(c.buildURL(svc.UploadPath))
	return parseOutcome(resp, err)
}

// SubmitRemoteReference posts JSON {url, ...fields} to the service's link endpoint
func (c *Client) SubmitRemoteReference(ctx context.Context, svc models.Service, url string, fields map[string]string) (transport.Outcome, error) {
	if !svc.SupportsURL() {
		return transport.Outcome{}, &models.ValidationError{Field: "source", Message: svc.Key + " does not accept links"}
	}

	payload := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["url"] = url

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(c.buildURL(svc.URLPath))
	return parseOutcome(resp, err)
}

// parseOutcome turns a submission response into an Outcome. Every failure becomes
// a ProcessingFailed carrying the body's "error" text when there is one.
func parseOutcome(resp *resty.Response, err error) (transport.Outcome, error) {
	if err != nil {
		return transport.Outcome{}, models.NewProcessingFailed("", 0, err)
	}

	var body map[string]any
	decodeErr := json.Unmarshal(resp.Body(), &body)

	if !resp.IsSuccess() {
		msg := ""
		if decodeErr == nil {
			msg, _ = body["error"].(string)
		}
		return transport.Outcome{}, models.NewProcessingFailed(msg, resp.StatusCode(), nil)
	}
	if decodeErr != nil || body == nil {
		return transport.Outcome{}, models.NewProcessingFailed("", resp.StatusCode(), decodeErr)
	}

	for _, key := range []string{"jobId", "job_id"} {
		if id, ok := body[key].(string); ok && id != "" {
			return transport.Outcome{JobID: id}, nil
		}
	}
	return transport.Outcome{Result: models.NewResult(body)}, nil
}
