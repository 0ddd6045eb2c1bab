// Package flowclient talks to the visit-flow API over HTTP. The Client is
// the flow engine's backend and permission resolver; Probe is its
// connectivity signal.
package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

const basePath = "/api/v1/visit-flows"

// Config configures a Client.
type Config struct {
	BaseURL    string
	Token      string
	TenantID   string
	FacilityID string
	Timeout    time.Duration
	// Retries is how many times a request is re-sent after a transport
	// failure. Writes reuse their Idempotency-Key.
	Retries    int
	HTTPClient *http.Client
}

type Client struct {
	base    *url.URL
	cfg     Config
	http    *http.Client
	backoff time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("flowclient: base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("flowclient: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("flowclient: unsupported scheme %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{base: base, cfg: cfg, http: hc, backoff: 200 * time.Millisecond}, nil
}

func (c *Client) List(ctx context.Context, params flowmodel.ListParams) (flowmodel.ListResult, error) {
	var res flowmodel.ListResult
	err := c.do(ctx, http.MethodGet, basePath, params.Values(), nil, &res)
	return res, err
}

func (c *Client) Get(ctx context.Context, id string) (*flowmodel.FlowSnapshot, error) {
	var snap flowmodel.FlowSnapshot
	if err := c.do(ctx, http.MethodGet, basePath+"/"+url.PathEscape(id), nil, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) Start(ctx context.Context, p flowmodel.StartVisitPayload) (*flowmodel.FlowSnapshot, error) {
	return c.mutate(ctx, basePath, p)
}

func (c *Client) PayConsultation(ctx context.Context, id string, p flowmodel.PaymentPayload) (*flowmodel.FlowSnapshot, error) {
	return c.mutate(ctx, actionPath(id, "pay-consultation"), p)
}

func (c *Client) RecordVitals(ctx context.Context, id string, p flowmodel.VitalsPayload) (*flowmodel.FlowSnapshot, error) {
	return c.mutate(ctx, actionPath(id, "record-vitals"), p)
}

func (c *Client) AssignDoctor(ctx context.Context, id string, p flowmodel.AssignDoctorPayload) (*flowmodel.FlowSnapshot, error) {
	return c.mutate(ctx, actionPath(id, "assign-doctor"), p)
}

func (c *Client) DoctorReview(ctx context.Context, id string, p flowmodel.DoctorReviewPayload) (*flowmodel.FlowSnapshot, error) {
	return c.mutate(ctx, actionPath(id, "doctor-review"), p)
}

func (c *Client) Disposition(ctx context.Context, id string, p flowmodel.DispositionPayload) (*flowmodel.FlowSnapshot, error) {
	return c.mutate(ctx, actionPath(id, "disposition"), p)
}

// Resolve fetches the caller's capabilities and scope.
func (c *Client) Resolve(ctx context.Context) (flowmodel.Capabilities, error) {
	var caps flowmodel.Capabilities
	err := c.do(ctx, http.MethodGet, basePath+"/capabilities", nil, nil, &caps)
	return caps, err
}

// Ping checks that the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func actionPath(id, action string) string {
	return basePath + "/" + url.PathEscape(id) + "/" + action
}

func (c *Client) mutate(ctx context.Context, path string, payload interface{}) (*flowmodel.FlowSnapshot, error) {
	var snap flowmodel.FlowSnapshot
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	u := *c.base
	u.Path = c.base.Path + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	idemKey := ""
	if method != http.MethodGet {
		idemKey = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return networkError(ctx.Err())
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}
		resp, err := c.send(ctx, method, u.String(), payload, idemKey)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return decode(resp, out)
	}
	return networkError(lastErr)
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, idemKey string) (*http.Response, error) {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	if c.cfg.TenantID != "" {
		req.Header.Set("X-Tenant-ID", c.cfg.TenantID)
	}
	if c.cfg.FacilityID != "" {
		req.Header.Set("X-Facility-ID", c.cfg.FacilityID)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	return c.http.Do(req)
}

func decode(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return networkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &flowmodel.APIError{Status: resp.StatusCode, Code: flowmodel.CodeRequestFailed, Message: "decode response: " + err.Error()}
	}
	return nil
}

// apiError builds the error for a non-2xx response. A body without the
// error envelope keeps an empty code, which callers map from the status.
func apiError(status int, body []byte) *flowmodel.APIError {
	var env flowmodel.ErrorBody
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil {
		env.Error.Status = status
		if env.Error.Message == "" {
			env.Error.Message = http.StatusText(status)
		}
		return env.Error
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" || len(msg) > 200 {
		msg = http.StatusText(status)
	}
	return &flowmodel.APIError{Status: status, Message: msg}
}

func networkError(err error) error {
	if err == nil {
		err = errors.New("request failed")
	}
	return fmt.Errorf("%w: %w", &flowmodel.APIError{Code: flowmodel.CodeNetwork, Message: "the flow service could not be reached"}, err)
}
