package model

import "time"

// TenantCredential is a decrypted tenant secret with its cache expiry.
type TenantCredential struct {
	Subdomain string    `json:"subdomain"`
	Secret    string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the credential must be decrypted again.
func (c TenantCredential) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
