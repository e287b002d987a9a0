// Package credentials models the externally stored CRM credential record.
//
// The record is a process-wide singleton living in the external store. Only the
// token lifecycle manager writes it; every other component reads it. Any write of
// access_token must carry a consistent expiry_time.
package credentials

import (
	"strconv"
	"time"
)

// Hash field names under which the record is stored.
const (
	FieldClientID          = "client_id"
	FieldClientSecret      = "client_secret"
	FieldAuthorizationCode = "authorization_code"
	FieldAccessToken       = "access_token"
	FieldRefreshToken      = "refresh_token"
	FieldAPIDomain         = "api_domain"
	FieldAccountsURL       = "accounts_url"
	FieldExpiryTime        = "expiry_time"
)

// Record holds the OAuth app registration and the current token state.
type Record struct {
	ClientID          string `json:"client_id"`
	ClientSecret      string `json:"client_secret"`
	AuthorizationCode string `json:"authorization_code"`
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token"`
	APIDomain         string `json:"api_domain"`
	AccountsURL       string `json:"accounts_url"`
	// ExpiryTime is the absolute timestamp in epoch milliseconds after which
	// AccessToken must be treated as invalid. Zero means always expired.
	ExpiryTime int64 `json:"expiry_time"`
}

// StaleAt reports whether the access token must be re-acquired at the given time.
// A token is expired at the exact expiry boundary, not after it, and an empty
// token or missing expiry is always stale.
func (r *Record) StaleAt(now time.Time) bool {
	if r.AccessToken == "" {
		return true
	}
	return now.UnixMilli() >= r.ExpiryTime
}

// FromFields builds a Record from a stored field map. Unknown fields are
// ignored; a malformed expiry_time reads as zero.
func FromFields(fields map[string]string) *Record {
	expiry, _ := strconv.ParseInt(fields[FieldExpiryTime], 10, 64)
	return &Record{
		ClientID:          fields[FieldClientID],
		ClientSecret:      fields[FieldClientSecret],
		AuthorizationCode: fields[FieldAuthorizationCode],
		AccessToken:       fields[FieldAccessToken],
		RefreshToken:      fields[FieldRefreshToken],
		APIDomain:         fields[FieldAPIDomain],
		AccountsURL:       fields[FieldAccountsURL],
		ExpiryTime:        expiry,
	}
}

// Fields serializes the record into a full field map for seeding the store.
func (r *Record) Fields() map[string]interface{} {
	return map[string]interface{}{
		FieldClientID:          r.ClientID,
		FieldClientSecret:      r.ClientSecret,
		FieldAuthorizationCode: r.AuthorizationCode,
		FieldAccessToken:       r.AccessToken,
		FieldRefreshToken:      r.RefreshToken,
		FieldAPIDomain:         r.APIDomain,
		FieldAccountsURL:       r.AccountsURL,
		FieldExpiryTime:        strconv.FormatInt(r.ExpiryTime, 10),
	}
}
