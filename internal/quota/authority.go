package quota

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPAuthority talks to the remote billing service over HTTP JSON.
type HTTPAuthority struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPAuthority creates an authority client for the given base URL.
func NewHTTPAuthority(baseURL, apiKey string) *HTTPAuthority {
	return &HTTPAuthority{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type checkRequest struct {
	TenantID string `json:"tenantId"`
}

type trackRequest struct {
	TenantID string `json:"tenantId"`
	Kind     string `json:"kind"`
	Cost     int    `json:"cost"`
	Success  bool   `json:"success"`
}

// CheckQuota fetches the tenant's current quota state.
func (a *HTTPAuthority) CheckQuota(ctx context.Context, tenantID string) (State, error) {
	var state State
	err := a.post(ctx, "/v1/quota/check", checkRequest{TenantID: tenantID}, &state)
	if err != nil {
		return State{}, err
	}
	return state, nil
}

// TrackUsage reports one unit of consumption. At most one attempt; the Gate
// treats failures as best-effort.
func (a *HTTPAuthority) TrackUsage(ctx context.Context, tenantID, kind string, cost int, success bool) (TrackResult, error) {
	var res TrackResult
	err := a.post(ctx, "/v1/quota/track", trackRequest{
		TenantID: tenantID,
		Kind:     kind,
		Cost:     cost,
		Success:  success,
	}, &res)
	if err != nil {
		return TrackResult{}, err
	}
	return res, nil
}

func (a *HTTPAuthority) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("quota authority request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("quota authority returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse quota authority response: %w", err)
	}
	return nil
}
