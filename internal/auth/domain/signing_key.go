package domain

import "time"

// SigningKey is a persisted JWT signing key. The private key PEM is sealed
// with the secret cipher before it is stored. Retired keys stop signing but
// keep verifying until ExpiresAt.
type SigningKey struct {
	ID                  string
	Kid                 string // key id published in the JWKS
	Algorithm           string // EdDSA or ES256
	PrivateKeyEncrypted string
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// IsActive returns true if the key is not retired and not expired.
func (k *SigningKey) IsActive(now time.Time) bool {
	return k.RetiredAt == nil && now.Before(k.ExpiresAt)
}

// IsExpired returns true if the key has passed its expiration time.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return now.After(k.ExpiresAt)
}
