// Package registry is the client-side adapter for the resource registry,
// the external service of record for patients, doctors and centers. All
// checks are fail-closed: a transport failure, timeout or unexpected status
// is reported as the resource not existing, never as an error the admission
// workflow could mistake for success.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Result is the normalized outcome of an existence/status lookup.
// Active is meaningful for patients only; doctors and centers report true.
type Result struct {
	Exists bool
	Active bool
	Detail map[string]interface{}
}

// CheckObserver counts verifier round-trips by outcome. Satisfied by
// telemetry.Metrics; nil disables counting.
type CheckObserver interface {
	ObserveRegistryCheck(kind, outcome string)
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
	metrics CheckObserver
}

// NewClient builds a verifier against baseURL with a fixed per-call timeout.
// The verifier never retries; retry policy belongs to the caller.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger, metrics CheckObserver) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// CheckDoctor verifies that a doctor exists in the registry.
func (c *Client) CheckDoctor(ctx context.Context, id int64, token string) Result {
	return c.check(ctx, "doctor", fmt.Sprintf("%s/admin/doctors/%d", c.baseURL, id), token, false)
}

// CheckPatient verifies that a patient exists and reflects the registry's
// ACTIVE/INACTIVE status in Result.Active.
func (c *Client) CheckPatient(ctx context.Context, id int64, token string) Result {
	return c.check(ctx, "patient", fmt.Sprintf("%s/admin/patients/%d", c.baseURL, id), token, true)
}

// CheckCenter verifies that a medical center exists in the registry.
func (c *Client) CheckCenter(ctx context.Context, id int64, token string) Result {
	return c.check(ctx, "center", fmt.Sprintf("%s/admin/centers/%d", c.baseURL, id), token, false)
}

func (c *Client) check(ctx context.Context, kind, url, token string, statusGated bool) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.failClosed(kind, "bad_request", err)
	}
	// Forward the caller's credential verbatim so the registry applies its
	// own authorization.
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// Unreachable or timed out. The wire contract collapses this to
		// "does not exist" but the log keeps the distinction.
		return c.failClosed(kind, "upstream_unavailable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode == http.StatusNotFound:
		c.observe(kind, "not_found")
		return Result{}
	default:
		return c.failClosed(kind, "unexpected_status",
			fmt.Errorf("registry returned status %d", resp.StatusCode))
	}

	var detail map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return c.failClosed(kind, "bad_payload", err)
	}

	res := Result{Exists: true, Active: true, Detail: detail}
	if statusGated {
		status, _ := detail["status"].(string)
		res.Active = status == "ACTIVE"
	}
	c.observe(kind, "exists")
	return res
}

func (c *Client) failClosed(kind, reason string, err error) Result {
	c.logger.Warn().
		Str("kind", kind).
		Str("reason", reason).
		Err(err).
		Msg("registry check failed closed")
	c.observe(kind, reason)
	return Result{}
}

func (c *Client) observe(kind, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveRegistryCheck(kind, outcome)
	}
}
