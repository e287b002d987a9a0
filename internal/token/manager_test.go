package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "crm-tag-proxy/internal/common/errors"
	"crm-tag-proxy/internal/common/logging"
	"crm-tag-proxy/internal/credentials"
	"crm-tag-proxy/internal/redis"
)

// fakeTokenEndpoint records every grant posted to it.
type fakeTokenEndpoint struct {
	mu         sync.Mutex
	grants     []map[string]string
	statusCode int
	response   string
}

func (f *fakeTokenEndpoint) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		grant := map[string]string{}
		for k := range r.PostForm {
			grant[k] = r.PostForm.Get(k)
		}

		f.mu.Lock()
		f.grants = append(f.grants, grant)
		status := f.statusCode
		response := f.response
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusOK
		}
		if response == "" {
			response = `{"access_token":"new-token","refresh_token":"new-refresh","api_domain":"https://www.zohoapis.com","token_type":"Bearer","expires_in":3600}`
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}
}

func (f *fakeTokenEndpoint) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grants)
}

func (f *fakeTokenEndpoint) lastGrant() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.grants) == 0 {
		return nil
	}
	return f.grants[len(f.grants)-1]
}

type managerFixture struct {
	manager  *Manager
	store    *credentials.RedisStore
	endpoint *fakeTokenEndpoint
	now      time.Time
}

func setupManager(t *testing.T) *managerFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store := credentials.NewRedisStore(client, "")

	endpoint := &fakeTokenEndpoint{}
	srv := httptest.NewServer(endpoint.handler())
	t.Cleanup(srv.Close)

	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)

	now := time.UnixMilli(1_700_000_000_000)
	manager := NewManager(store, "https://example.com/callback", logger,
		WithAccountsURL(srv.URL),
		WithClock(func() time.Time { return now }),
	)

	return &managerFixture{manager: manager, store: store, endpoint: endpoint, now: now}
}

func (fx *managerFixture) seed(t *testing.T, record *credentials.Record) {
	t.Helper()
	require.NoError(t, fx.store.Update(context.Background(), record.Fields()))
}

func baseRecord() *credentials.Record {
	return &credentials.Record{
		ClientID:          "client-1",
		ClientSecret:      "secret-1",
		AuthorizationCode: "auth-code-1",
	}
}

func TestEnsureAccessToken_FreshTokenPerformsNoExchange(t *testing.T) {
	fx := setupManager(t)
	record := baseRecord()
	record.AccessToken = "cached-token"
	record.ExpiryTime = fx.now.UnixMilli() + 60_000
	fx.seed(t, record)

	tok, err := fx.manager.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "cached-token", tok)
	assert.Equal(t, 0, fx.endpoint.exchangeCount())
}

func TestEnsureAccessToken_MissingTokenUsesAuthorizationCodeGrant(t *testing.T) {
	fx := setupManager(t)
	fx.seed(t, baseRecord())

	tok, err := fx.manager.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new-token", tok)
	require.Equal(t, 1, fx.endpoint.exchangeCount())

	grant := fx.endpoint.lastGrant()
	assert.Equal(t, "authorization_code", grant["grant_type"])
	assert.Equal(t, "client-1", grant["client_id"])
	assert.Equal(t, "secret-1", grant["client_secret"])
	assert.Equal(t, "auth-code-1", grant["code"])
	assert.Equal(t, "https://example.com/callback", grant["redirect_uri"])

	// The exchange must persist token, refresh token, and a consistent expiry.
	record, err := fx.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new-token", record.AccessToken)
	assert.Equal(t, "new-refresh", record.RefreshToken)
	assert.Equal(t, fx.now.UnixMilli()+3600*1000, record.ExpiryTime)
}

func TestEnsureAccessToken_ExpiredWithRefreshTokenUsesRefreshGrant(t *testing.T) {
	fx := setupManager(t)
	record := baseRecord()
	record.AccessToken = "stale-token"
	record.RefreshToken = "refresh-1"
	record.ExpiryTime = fx.now.UnixMilli() - 1
	fx.seed(t, record)

	tok, err := fx.manager.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new-token", tok)
	require.Equal(t, 1, fx.endpoint.exchangeCount())

	grant := fx.endpoint.lastGrant()
	assert.Equal(t, "refresh_token", grant["grant_type"])
	assert.Equal(t, "refresh-1", grant["refresh_token"])
	assert.Empty(t, grant["code"])

	// The refresh grant leaves the stored refresh token unchanged.
	stored, err := fx.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.Equal(t, fx.now.UnixMilli()+3600*1000, stored.ExpiryTime)
}

func TestEnsureAccessToken_ExpiryBoundaryIsExpired(t *testing.T) {
	fx := setupManager(t)
	record := baseRecord()
	record.AccessToken = "boundary-token"
	record.RefreshToken = "refresh-1"
	record.ExpiryTime = fx.now.UnixMilli()
	fx.seed(t, record)

	tok, err := fx.manager.EnsureAccessToken(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "new-token", tok)
	assert.Equal(t, 1, fx.endpoint.exchangeCount())
}

func TestEnsureAccessToken_MissingExpiryIsAlwaysExpired(t *testing.T) {
	fx := setupManager(t)
	record := baseRecord()
	record.AccessToken = "no-expiry-token"
	record.RefreshToken = "refresh-1"
	fx.seed(t, record)

	_, err := fx.manager.EnsureAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fx.endpoint.exchangeCount())
}

func TestEnsureAccessToken_RejectedExchangeIsAuthError(t *testing.T) {
	fx := setupManager(t)
	fx.seed(t, baseRecord())
	fx.endpoint.statusCode = http.StatusBadRequest
	fx.endpoint.response = `{"error":"invalid_code","error_description":"authorization code expired"}`

	_, err := fx.manager.EnsureAccessToken(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
	assert.Contains(t, err.Error(), "invalid_code")
}

func TestEnsureAccessToken_EmptyTokenInOKResponseIsAuthError(t *testing.T) {
	fx := setupManager(t)
	fx.seed(t, baseRecord())
	fx.endpoint.response = `{"error":"invalid_client"}`

	_, err := fx.manager.EnsureAccessToken(context.Background())

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
}

func TestEnsureAccessToken_UnreachableEndpointIsAuthError(t *testing.T) {
	fx := setupManager(t)
	fx.seed(t, baseRecord())

	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)

	manager := NewManager(fx.store, "https://example.com/callback", logger,
		WithAccountsURL("http://127.0.0.1:1"),
		WithHTTPClient(&http.Client{Timeout: time.Second}),
	)

	_, err = manager.EnsureAccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeAuth))
}

func TestEnsureAccessToken_StoreFailureIsStorageError(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client, err := redis.NewClient(&redis.Config{Address: mr.Addr()})
	require.NoError(t, err)

	store := credentials.NewRedisStore(client, "")
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)

	manager := NewManager(store, "https://example.com/callback", logger)

	mr.Close()
	_, err = manager.EnsureAccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestTokenURL_Precedence(t *testing.T) {
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)

	t.Run("option override wins", func(t *testing.T) {
		m := NewManager(nil, "", logger, WithAccountsURL("https://accounts.zoho.eu/"))
		assert.Equal(t, "https://accounts.zoho.eu/oauth/v2/token", m.tokenURL(&credentials.Record{AccountsURL: "https://accounts.zoho.com"}))
	})

	t.Run("record accounts_url", func(t *testing.T) {
		m := NewManager(nil, "", logger)
		assert.Equal(t, "https://accounts.zoho.in/oauth/v2/token", m.tokenURL(&credentials.Record{AccountsURL: "https://accounts.zoho.in"}))
	})

	t.Run("default region", func(t *testing.T) {
		m := NewManager(nil, "", logger)
		assert.Equal(t, DefaultAccountsURL+"/oauth/v2/token", m.tokenURL(&credentials.Record{}))
	})
}

func TestExpiryMillis(t *testing.T) {
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.ErrorLevel})
	require.NoError(t, err)

	now := time.UnixMilli(1000)
	m := NewManager(nil, "", logger, WithClock(func() time.Time { return now }))

	assert.Equal(t, strconv.FormatInt(1000+3600*1000, 10), m.expiryMillis(3600))
}
