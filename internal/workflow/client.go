// Package workflow starts analysis workflows on the remote workflow service.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mattjoyce/plantdata-gw/internal/inspection"
)

const (
	triggerPath     = "/trigger-analysis"
	maxErrorBodyLen = 512
)

// TriggerRequest is the body posted to the workflow service.
type TriggerRequest struct {
	InspectionID                  string `json:"inspectionId"`
	PlantDataID                   string `json:"plantDataId"`
	TagID                         string `json:"tagId"`
	InstallationCode              string `json:"installationCode,omitempty"`
	RawDataBlobStorageLocation    string `json:"rawDataBlobStorageLocation,omitempty"`
	VisualizedBlobStorageLocation string `json:"visualizedBlobStorageLocation,omitempty"`
	ShouldRunConstantLevelOiler   bool   `json:"shouldRunConstantLevelOiler"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("workflow service returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("workflow service returned HTTP %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient builds a client for the workflow service at baseURL. A zero
// timeout falls back to 30s.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TriggerAnalysis asks the workflow service to start analysis of rec.
func (c *Client) TriggerAnalysis(ctx context.Context, rec *inspection.Record, runConstantLevelOiler bool) error {
	if rec == nil {
		return fmt.Errorf("trigger analysis: record is nil")
	}
	body, err := json.Marshal(TriggerRequest{
		InspectionID:                  rec.InspectionID,
		PlantDataID:                   rec.ID,
		TagID:                         rec.TagID,
		InstallationCode:              rec.InstallationCode,
		RawDataBlobStorageLocation:    rec.RawDataPath,
		VisualizedBlobStorageLocation: rec.VisualizedDataPath,
		ShouldRunConstantLevelOiler:   runConstantLevelOiler,
	})
	if err != nil {
		return fmt.Errorf("marshal trigger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+triggerPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post trigger request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
