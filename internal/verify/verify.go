// Package verify is the narrow interface to a remote email-deliverability
// oracle. Results are advisory: import never blocks on verification.
package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Result is one deliverability verdict.
type Result struct {
	Deliverable bool   `json:"deliverable"`
	Reason      string `json:"reason,omitempty"`
}

type Oracle interface {
	Check(ctx context.Context, email string) (Result, error)
}

// HTTPOracle queries a hosted verification API: GET {base}/v1/verify?email=...
// returning a Result JSON body.
type HTTPOracle struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPOracle(baseURL, apiKey string) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (o *HTTPOracle) Check(ctx context.Context, email string) (Result, error) {
	u := fmt.Sprintf("%s/v1/verify?email=%s", o.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("verification service returned %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("decode verification response: %w", err)
	}
	return res, nil
}

// NoopOracle treats every address as deliverable. Used when no
// verification service is configured.
type NoopOracle struct{}

func (NoopOracle) Check(_ context.Context, _ string) (Result, error) {
	return Result{Deliverable: true}, nil
}
