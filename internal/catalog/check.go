package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ConnectionResult reports the outcome of probing a provider's API with the
// user's credentials.
type ConnectionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

// Model is one entry of a provider's model listing.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Created     int64  `json:"created,omitempty"`
}

// Checker probes provider APIs with stored credentials. The models endpoint
// doubles as a cheap connectivity check.
type Checker struct {
	client *http.Client
}

// NewChecker creates a checker with the given per-probe timeout.
func NewChecker(timeout time.Duration) *Checker {
	return &Checker{client: &http.Client{Timeout: timeout}}
}

// Ping issues a credentialed request against the provider's models endpoint
// and reports reachability. Probe failures are results, not errors.
func (c *Checker) Ping(ctx context.Context, cfg *Config) *ConnectionResult {
	resp, err := c.do(ctx, cfg)
	if err != nil {
		return &ConnectionResult{Success: false, Message: err.Error()}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return &ConnectionResult{
			Success:    false,
			Message:    fmt.Sprintf("provider returned %s", resp.Status),
			StatusCode: resp.StatusCode,
		}
	}
	return &ConnectionResult{Success: true, Message: "connection ok", StatusCode: resp.StatusCode}
}

// Models fetches the provider's model listing with the user's credentials.
func (c *Checker) Models(ctx context.Context, cfg *Config) ([]Model, error) {
	resp, err := c.do(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider %s: unexpected status %s", cfg.ProviderName, resp.Status)
	}

	var body struct {
		Data []struct {
			ID          string `json:"id"`
			Description string `json:"description"`
			Created     int64  `json:"created"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding model listing: %w", err)
	}

	models := make([]Model, 0, len(body.Data))
	for _, m := range body.Data {
		models = append(models, Model{
			ID:          m.ID,
			Name:        m.ID,
			Description: m.Description,
			Created:     m.Created,
		})
	}
	return models, nil
}

func (c *Checker) do(ctx context.Context, cfg *Config) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.APIURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("building probe request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reaching provider %s: %w", cfg.ProviderName, err)
	}
	return resp, nil
}
