package jwtx

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/purse/pkg/idx"
)

// SigningKeyRecord is a persisted signing key. The private key is sealed
// by a Sealer before it reaches storage.
type SigningKeyRecord struct {
	ID                  string
	Kid                 string
	Algorithm           string
	PrivateKeyEncrypted string
	CreatedAt           time.Time
	RetiredAt           *time.Time
	ExpiresAt           time.Time
}

// KeyStore is the slice of the repository the persistent manager needs.
type KeyStore interface {
	// ListVerificationKeys returns every key that may still verify a token:
	// active keys and retired keys inside their grace period.
	ListVerificationKeys(ctx context.Context, now time.Time) ([]SigningKeyRecord, error)
	CreateSigningKey(ctx context.Context, key SigningKeyRecord) error
}

// Sealer encrypts private keys at rest. *cryptox.SecretCipher satisfies it.
type Sealer interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(payload string) ([]byte, error)
}

// PersistentKeyManagerOptions configures NewPersistentKeyManager.
type PersistentKeyManagerOptions struct {
	KeyManagerOptions

	Store  KeyStore
	Sealer Sealer

	// GracePeriod is how long a retired key keeps verifying (default 30d).
	GracePeriod time.Duration
}

// NewPersistentKeyManager loads sealed keys from the store so every
// instance signs and verifies with the same set. Active keys of the
// configured algorithm sign; every unexpired key verifies. Missing active
// keys are generated and stored.
func NewPersistentKeyManager(ctx context.Context, opts PersistentKeyManagerOptions) (*KeyManager, error) {
	if opts.Store == nil || opts.Sealer == nil {
		return nil, fmt.Errorf("jwtx: Store and Sealer are required for persistent key manager")
	}
	if err := opts.normalise(); err != nil {
		return nil, err
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = 30 * 24 * time.Hour
	}

	now := time.Now().UTC()
	records, err := opts.Store.ListVerificationKeys(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("jwtx: failed to load signing keys: %w", err)
	}

	km := newKeyManager(opts.KeyManagerOptions)
	km.store, km.sealer = opts.Store, opts.Sealer
	for _, rec := range records {
		pemData, err := opts.Sealer.Decrypt(rec.PrivateKeyEncrypted)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to unseal key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to load key %s: %w", rec.Kid, err)
		}

		if rec.RetiredAt == nil && rec.Algorithm == opts.Algorithm && km.NumSigners() < opts.NumKeys {
			if err := km.AddSigner(signer); err != nil {
				return nil, err
			}
			continue
		}
		// Verification only.
		if err := km.KeySet.AddSigner(signer); err != nil {
			return nil, fmt.Errorf("jwtx: failed to add key %s to keyset: %w", rec.Kid, err)
		}
	}

	for km.NumSigners() < opts.NumKeys {
		pemData, signer, err := generateKey(opts.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate new key: %w", err)
		}
		sealed, err := opts.Sealer.Encrypt(pemData)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to seal new key: %w", err)
		}

		err = opts.Store.CreateSigningKey(ctx, SigningKeyRecord{
			ID:                  idx.New().String(),
			Kid:                 signer.KID(),
			Algorithm:           opts.Algorithm,
			PrivateKeyEncrypted: sealed,
			CreatedAt:           now,
			ExpiresAt:           now.Add(opts.GracePeriod),
		})
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to store new key: %w", err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}

	return km, nil
}

// Refresh publishes keys other instances stored since this one booted, so
// tokens they sign verify here too. A no-op for ephemeral managers.
func (km *KeyManager) Refresh(ctx context.Context) (int, error) {
	if km.store == nil {
		return 0, nil
	}
	records, err := km.store.ListVerificationKeys(ctx, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("jwtx: failed to load signing keys: %w", err)
	}

	added := 0
	for _, rec := range records {
		if _, err := km.KeySet.Get(rec.Kid); err == nil {
			continue
		}
		pemData, err := km.sealer.Decrypt(rec.PrivateKeyEncrypted)
		if err != nil {
			return added, fmt.Errorf("jwtx: failed to unseal key %s: %w", rec.Kid, err)
		}
		signer, err := NewSigner(rec.Algorithm, rec.Kid, pemData)
		if err != nil {
			return added, fmt.Errorf("jwtx: failed to load key %s: %w", rec.Kid, err)
		}
		if err := km.KeySet.AddSigner(signer); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
