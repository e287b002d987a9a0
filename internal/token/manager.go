// Package token implements the OAuth token lifecycle for the CRM connection.
//
// The manager owns every write to the credential record. It keeps no in-process
// token cache: validity is decided against the store on every call, so the store
// stays the single source of truth. Two concurrent callers observing a stale
// token may both perform an exchange; the second may invalidate the first's
// token depending on provider semantics. This race is accepted and unmitigated.
package token

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crm-tag-proxy/internal/circuitbreaker"
	"crm-tag-proxy/internal/common/errors"
	"crm-tag-proxy/internal/common/logging"
	"crm-tag-proxy/internal/credentials"
)

// DefaultAccountsURL is the token endpoint base used when the credential
// record carries none. The proxy targets a single fixed region.
const DefaultAccountsURL = "https://accounts.zoho.com"

const tokenPath = "/oauth/v2/token"

// tokenResponse maps the token endpoint's JSON response.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	APIDomain    string `json:"api_domain,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Manager decides token validity and performs the two exchange grants.
type Manager struct {
	store       credentials.Store
	httpClient  *http.Client
	breaker     *circuitbreaker.Breaker
	logger      logging.Logger
	redirectURI string
	// accountsURL overrides the record's accounts_url when set (tests, regions)
	accountsURL string
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for token requests.
func WithHTTPClient(client *http.Client) Option {
	return func(m *Manager) { m.httpClient = client }
}

// WithAccountsURL pins the token endpoint base, overriding the record.
func WithAccountsURL(accountsURL string) Option {
	return func(m *Manager) { m.accountsURL = strings.TrimSuffix(accountsURL, "/") }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a token lifecycle manager over the given credential store.
func NewManager(store credentials.Store, redirectURI string, logger logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	m := &Manager{
		store:       store,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		breaker:     circuitbreaker.New("oauth-token-exchange", circuitbreaker.OAuthConfig, logger),
		logger:      logger,
		redirectURI: redirectURI,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureAccessToken returns a usable access token, performing at most one
// exchange when the stored token is stale. The record is re-read after a
// successful exchange so the returned token is exactly what was persisted.
func (m *Manager) EnsureAccessToken(ctx context.Context) (string, error) {
	record, err := m.store.Get(ctx)
	if err != nil {
		m.logger.Error("Failed to read credential record", err)
		return "", err
	}

	if record.StaleAt(m.now()) {
		if record.RefreshToken == "" {
			err = m.exchangeAuthorizationCode(ctx, record)
		} else {
			err = m.exchangeRefreshToken(ctx, record)
		}
		if err != nil {
			return "", err
		}
	}

	record, err = m.store.Get(ctx)
	if err != nil {
		m.logger.Error("Failed to re-read credential record", err)
		return "", err
	}
	return record.AccessToken, nil
}

// exchangeAuthorizationCode performs the one-time authorization code grant and
// persists the full token state including the newly minted refresh token.
//
// The upstream implementation sent client_id in the client_secret field here;
// we send the record's client_secret, which is what the grant specifies.
func (m *Manager) exchangeAuthorizationCode(ctx context.Context, record *credentials.Record) error {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", record.ClientID)
	data.Set("client_secret", record.ClientSecret)
	data.Set("redirect_uri", m.redirectURI)
	data.Set("code", record.AuthorizationCode)

	m.logger.Info("Performing authorization code exchange")

	resp, err := m.requestToken(ctx, m.tokenURL(record), data)
	if err != nil {
		return err
	}

	return m.persist(ctx, map[string]interface{}{
		credentials.FieldAccessToken:  resp.AccessToken,
		credentials.FieldRefreshToken: resp.RefreshToken,
		credentials.FieldExpiryTime:   m.expiryMillis(resp.ExpiresIn),
	})
}

// exchangeRefreshToken mints a new access token; the refresh token is unchanged.
func (m *Manager) exchangeRefreshToken(ctx context.Context, record *credentials.Record) error {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("client_id", record.ClientID)
	data.Set("client_secret", record.ClientSecret)
	data.Set("refresh_token", record.RefreshToken)

	m.logger.Debug("Performing refresh token exchange")

	resp, err := m.requestToken(ctx, m.tokenURL(record), data)
	if err != nil {
		return err
	}

	return m.persist(ctx, map[string]interface{}{
		credentials.FieldAccessToken: resp.AccessToken,
		credentials.FieldExpiryTime:  m.expiryMillis(resp.ExpiresIn),
	})
}

func (m *Manager) tokenURL(record *credentials.Record) string {
	base := m.accountsURL
	if base == "" {
		base = strings.TrimSuffix(record.AccountsURL, "/")
	}
	if base == "" {
		base = DefaultAccountsURL
	}
	return base + tokenPath
}

func (m *Manager) expiryMillis(expiresIn int64) string {
	return strconv.FormatInt(m.now().UnixMilli()+expiresIn*1000, 10)
}

func (m *Manager) persist(ctx context.Context, fields map[string]interface{}) error {
	if err := m.store.Update(ctx, fields); err != nil {
		m.logger.Error("Failed to persist token state", err)
		return err
	}
	return nil
}

// requestToken posts the form-encoded grant to the token endpoint through the
// OAuth circuit breaker and decodes the response.
func (m *Manager) requestToken(ctx context.Context, tokenURL string, data url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, errors.AuthError("failed to create token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp *http.Response
	err = m.breaker.Execute(ctx, func() error {
		var httpErr error
		resp, httpErr = m.httpClient.Do(req)
		return httpErr
	})
	if err != nil {
		m.logger.Error("Token request failed", err, logging.Field{Key: "url", Value: tokenURL})
		return nil, errors.AuthError("token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp struct {
			Error       string `json:"error"`
			Description string `json:"error_description"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return nil, errors.AuthError(fmt.Sprintf("token request rejected: %s - %s", errResp.Error, errResp.Description), nil)
		}
		return nil, errors.AuthError(fmt.Sprintf("token request failed with status %d", resp.StatusCode), nil)
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, errors.AuthError("failed to decode token response", err)
	}

	// Zoho reports some grant errors with a 200 status and an empty token.
	if tokenResp.AccessToken == "" {
		return nil, errors.AuthError("token endpoint returned no access token", nil)
	}

	m.logger.Info("Token exchange succeeded",
		logging.Field{Key: "expires_in", Value: tokenResp.ExpiresIn})

	return &tokenResp, nil
}
