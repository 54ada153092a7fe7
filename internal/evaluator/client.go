package evaluator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrLeaseLost reports that the coordinator no longer recognizes this
// worker's lease on a submission. Not worth logging loudly; the work
// is simply dropped.
var ErrLeaseLost = errors.New("lease lost")

// APIClient talks to the coordinator's internal /v1/evaluate endpoints.
type APIClient struct {
	BaseURL       string
	APIKey        string
	LeaseDuration time.Duration
	HTTP          *http.Client
}

func NewAPIClient(baseURL, apiKey string, leaseDuration time.Duration) *APIClient {
	return &APIClient{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		APIKey:        apiKey,
		LeaseDuration: leaseDuration,
		HTTP:          &http.Client{Timeout: 30 * time.Second},
	}
}

type fetchRequest struct {
	WorkerID         string `json:"worker_id"`
	Limit            int    `json:"limit"`
	LeaseDurationSec int    `json:"lease_duration_sec,omitempty"`
}

type fetchResponse struct {
	Work []Work `json:"work"`
}

// Fetch leases up to limit submissions for this worker.
func (c *APIClient) Fetch(ctx context.Context, workerID string, limit int) ([]Work, error) {
	var resp fetchResponse
	req := fetchRequest{
		WorkerID:         workerID,
		Limit:            limit,
		LeaseDurationSec: int(c.LeaseDuration.Seconds()),
	}
	if err := c.post(ctx, "/v1/evaluate/fetch", req, &resp); err != nil {
		return nil, err
	}
	return resp.Work, nil
}

type submitRequest struct {
	WorkerID     string  `json:"worker_id"`
	SubmissionID string  `json:"submission_id"`
	Outcome      Outcome `json:"outcome"`
}

// Submit commits a finished pipeline outcome.
func (c *APIClient) Submit(ctx context.Context, workerID, submissionID string, outcome Outcome) error {
	return c.post(ctx, "/v1/evaluate/submit", submitRequest{
		WorkerID:     workerID,
		SubmissionID: submissionID,
		Outcome:      outcome,
	}, nil)
}

type renewRequest struct {
	WorkerID         string `json:"worker_id"`
	SubmissionID     string `json:"submission_id"`
	LeaseDurationSec int    `json:"lease_duration_sec,omitempty"`
}

// Renew extends the lease on a submission this worker still holds.
func (c *APIClient) Renew(ctx context.Context, workerID, submissionID string) error {
	return c.post(ctx, "/v1/evaluate/renew", renewRequest{
		WorkerID:         workerID,
		SubmissionID:     submissionID,
		LeaseDurationSec: int(c.LeaseDuration.Seconds()),
	}, nil)
}

func (c *APIClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrLeaseLost
	}
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
