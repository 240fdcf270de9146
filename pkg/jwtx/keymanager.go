package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/purse/pkg/cryptox"
)

// Supported JWT signing algorithms.
const (
	AlgorithmEdDSA = "EdDSA"
	AlgorithmES256 = "ES256"
)

const (
	defaultNumKeys = 3
	maxNumKeys     = 10
)

// KeyManager owns the signing keys of one instance and the KeySet that
// verifies them. Signing picks a random active key.
type KeyManager struct {
	Verifier  Verifier
	KeySet    *KeySet
	algorithm string

	mu      sync.RWMutex
	signers []Signer

	// set in persistent mode
	store  KeyStore
	sealer Sealer
}

// KeyManagerOptions configures a KeyManager.
type KeyManagerOptions struct {
	// Algorithm is EdDSA or ES256.
	Algorithm string

	// Issuer and Audience are stamped on and enforced for access tokens.
	Issuer   string
	Audience []string

	// NumKeys is how many active signing keys to hold (1..10, default 3).
	NumKeys int
}

func (o *KeyManagerOptions) normalise() error {
	if o.Issuer == "" {
		return fmt.Errorf("jwtx: Issuer is required")
	}
	switch o.Algorithm {
	case AlgorithmEdDSA, AlgorithmES256:
	default:
		return fmt.Errorf("jwtx: unsupported algorithm %q (supported: EdDSA, ES256)", o.Algorithm)
	}
	if o.NumKeys <= 0 {
		o.NumKeys = defaultNumKeys
	}
	o.NumKeys = min(o.NumKeys, maxNumKeys)
	return nil
}

// NewEphemeralKeyManager generates NumKeys in-memory keys. Tokens do not
// survive a restart and are not accepted by other instances.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if err := opts.normalise(); err != nil {
		return nil, err
	}

	km := newKeyManager(opts)
	for i := range opts.NumKeys {
		_, signer, err := generateKey(opts.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("jwtx: failed to generate signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	return km, nil
}

func newKeyManager(opts KeyManagerOptions) *KeyManager {
	keyset := NewKeySet()
	return &KeyManager{
		Verifier:  NewVerifier(keyset, opts.Algorithm, opts.Issuer, opts.Audience),
		KeySet:    keyset,
		algorithm: opts.Algorithm,
	}
}

// generateKey returns a fresh PEM private key and its signer.
func generateKey(alg string) ([]byte, Signer, error) {
	kid, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate key ID: %w", err)
	}
	kid = "purse-" + kid

	var pemData []byte
	switch alg {
	case AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	case AlgorithmES256:
		pemData, err = cryptox.GenerateES256Key()
	default:
		return nil, nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, nil, err
	}

	signer, err := NewSigner(alg, kid, pemData)
	if err != nil {
		return nil, nil, err
	}
	return pemData, signer, nil
}

// Algorithm returns the signing algorithm in use.
func (km *KeyManager) Algorithm() string {
	return km.algorithm
}

// IsReady reports whether keys are loaded.
func (km *KeyManager) IsReady() bool {
	return km.KeySet.IsReady() && km.NumSigners() > 0
}

// GetSigner returns a random active signer, or nil when none exist.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))] // #nosec G404 -- load spreading, not security
	}
}

// Sign signs claims with a random active key.
func (km *KeyManager) Sign(claims Claims) (string, error) {
	signer := km.GetSigner()
	if signer == nil {
		return "", fmt.Errorf("jwtx: no active signing key")
	}
	return signer.Sign(claims)
}

// NumSigners returns the number of active signing keys.
func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner makes signer active and publishes its public key.
func (km *KeyManager) AddSigner(signer Signer) error {
	if signer == nil {
		return fmt.Errorf("jwtx: signer cannot be nil")
	}
	if signer.Alg() != km.algorithm {
		return fmt.Errorf("jwtx: signer algorithm %s does not match %s", signer.Alg(), km.algorithm)
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	if err := km.KeySet.AddSigner(signer); err != nil {
		return fmt.Errorf("jwtx: failed to add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, signer)
	return nil
}
