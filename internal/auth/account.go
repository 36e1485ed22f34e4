// Package auth holds local accounts, the encrypted account store, the
// device-authorization login flow and the session that feeds tokens to
// the API client.
package auth

import (
	"time"
)

// OfflineToken marks accounts that were never logged in against the
// backend. Such accounts can browse nothing and never refresh.
const OfflineToken = "offline"

// refreshHorizon is how far before the token expiry a refresh is
// already worthwhile.
const refreshHorizon = 6 * time.Hour

// Account is a locally stored identity. Tokens are plaintext in
// memory; the store seals them before they touch disk.
type Account struct {
	UUID         string
	Name         string
	AuthToken    string
	RefreshToken string
	Expiry       time.Time
}

// Offline creates an account without backend credentials.
func Offline(uuid, name string) Account {
	return Account{UUID: uuid, Name: name, AuthToken: OfflineToken}
}

func (a Account) IsOffline() bool {
	return a.AuthToken == OfflineToken
}

// Expired reports whether the auth token is unusable at the given time.
func (a Account) Expired(now time.Time) bool {
	if a.IsOffline() {
		return false
	}
	return !a.Expiry.IsZero() && !now.Before(a.Expiry)
}

// NeedsRefresh reports whether the token should be refreshed before
// the next authenticated call. Offline accounts never refresh.
func (a Account) NeedsRefresh(now time.Time) bool {
	if a.IsOffline() || a.RefreshToken == "" {
		return false
	}
	if a.Expiry.IsZero() {
		return false
	}
	return now.After(a.Expiry.Add(-refreshHorizon))
}
