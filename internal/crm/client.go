// Package crm provides the authenticated CRM API client and lead operations.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crm-tag-proxy/internal/circuitbreaker"
	"crm-tag-proxy/internal/common/errors"
	"crm-tag-proxy/internal/common/logging"
)

// DefaultAPIDomain is the CRM API base used when none is configured.
// The proxy targets a single fixed region.
const DefaultAPIDomain = "https://www.zohoapis.com"

const apiPrefix = "/crm/v2"

// TokenSource supplies a valid bearer token for outbound CRM calls.
type TokenSource interface {
	EnsureAccessToken(ctx context.Context) (string, error)
}

// Request describes a CRM API call: method, path relative to the CRM API
// prefix, optional query parameters, and an optional JSON body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   interface{}
}

// Client executes CRM API requests with a valid bearer credential merged in.
type Client struct {
	apiDomain  string
	httpClient *http.Client
	tokens     TokenSource
	breaker    *circuitbreaker.Breaker
	logger     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a CRM client over the given token source.
// An empty apiDomain falls back to DefaultAPIDomain.
func NewClient(apiDomain string, tokens TokenSource, logger logging.Logger, opts ...Option) *Client {
	if apiDomain == "" {
		apiDomain = DefaultAPIDomain
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	c := &Client{
		apiDomain:  strings.TrimSuffix(apiDomain, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		breaker:    circuitbreaker.New("crm-api", circuitbreaker.CRMConfig, logger),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute obtains a valid token, performs the described call, and returns the
// raw response body. Non-2xx responses and transport failures surface as API
// errors; there is no 401 retry within a single call, so a token expiring
// between validation and the call fails the request and must be retried by
// the caller as a new top-level operation.
func (c *Client) Execute(ctx context.Context, r Request) ([]byte, error) {
	token, err := c.tokens.EnsureAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	reqURL := c.apiDomain + apiPrefix + r.Path
	if len(r.Query) > 0 {
		reqURL += "?" + r.Query.Encode()
	}

	var bodyReader io.Reader
	if r.Body != nil {
		payload, err := json.Marshal(r.Body)
		if err != nil {
			return nil, errors.APIError("failed to encode request body", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, reqURL, bodyReader)
	if err != nil {
		return nil, errors.APIError("failed to create request", err)
	}
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)
	req.Header.Set("Content-Type", "application/json")

	var resp *http.Response
	err = c.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = c.httpClient.Do(req)
		return httpErr
	})
	if err != nil {
		c.logger.Error("CRM API call failed", err,
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.Path})
		return nil, errors.APIError("CRM API call failed", err).
			WithContext("method", r.Method).
			WithContext("path", r.Path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.APIError("failed to read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Error("CRM API returned error status", nil,
			logging.Field{Key: "method", Value: r.Method},
			logging.Field{Key: "path", Value: r.Path},
			logging.Field{Key: "status", Value: resp.StatusCode},
			logging.Field{Key: "body", Value: string(respBody)})
		return nil, errors.APIError(fmt.Sprintf("CRM API returned status %d: %s", resp.StatusCode, string(respBody)), nil).
			WithContext("method", r.Method).
			WithContext("path", r.Path)
	}

	return respBody, nil
}
