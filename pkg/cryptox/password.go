package cryptox

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

// HashParams are the Argon2id cost parameters encoded into every hash.
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultHashParams keeps a single verification in the tens of milliseconds
// while costing an attacker 19 MiB per guess.
var DefaultHashParams = HashParams{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Upper bounds accepted when reading parameters back out of a stored hash.
// A tampered row must not be able to make us allocate gigabytes.
const (
	maxMemory      = 256 * 1024
	maxIterations  = 16
	maxParallelism = 16
	minKeyLength   = 16
	maxKeyLength   = 128
)

// HasherConfig configures a Hasher.
type HasherConfig struct {
	// Pepper is appended to every password before hashing. Losing it
	// invalidates every stored hash.
	Pepper string

	// Params defaults to DefaultHashParams when zero.
	Params HashParams

	// Concurrency bounds how many hashes run at once. Defaults to GOMAXPROCS.
	Concurrency int
}

// Hasher hashes and verifies passwords with Argon2id. Work is gated by a
// weighted semaphore so a burst of logins queues instead of starving the
// rest of the process, and queued callers give up when their context ends.
type Hasher struct {
	pepper []byte
	params HashParams
	sem    *semaphore.Weighted
}

// NewHasher builds a Hasher from cfg.
func NewHasher(cfg HasherConfig) *Hasher {
	params := cfg.Params
	if params == (HashParams{}) {
		params = DefaultHashParams
	}
	n := cfg.Concurrency
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return &Hasher{
		pepper: []byte(cfg.Pepper),
		params: params,
		sem:    semaphore.NewWeighted(int64(n)),
	}
}

// Hash returns a PHC-format Argon2id hash: $argon2id$v=19$m=..,t=..,p=..$salt$hash
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: failed to generate salt: %w", err)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	key := argon2.IDKey(h.peppered(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	h.sem.Release(1)

	return encodePHC(h.params, salt, key), nil
}

// Verify reports whether password matches encoded. A malformed or foreign
// hash is a mismatch, not an error; the only error is ctx ending while
// waiting for a hashing slot.
func (h *Hasher) Verify(ctx context.Context, encoded, password string) (bool, error) {
	params, salt, expected, ok := decodePHC(encoded)
	if !ok {
		return false, nil
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	computed := argon2.IDKey(h.peppered(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	h.sem.Release(1)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsRehash reports whether encoded was produced with parameters other
// than the hasher's current ones. Unparseable input needs a rehash too.
func (h *Hasher) NeedsRehash(encoded string) bool {
	params, salt, _, ok := decodePHC(encoded)
	if !ok {
		return true
	}
	params.SaltLength = uint32(len(salt)) // #nosec G115 -- bounded by decodePHC
	return params != h.params
}

func (h *Hasher) peppered(password string) []byte {
	buf := make([]byte, 0, len(password)+len(h.pepper))
	buf = append(buf, password...)
	return append(buf, h.pepper...)
}

func encodePHC(p HashParams, salt, key []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.Memory,
		p.Iterations,
		p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// decodePHC parses a PHC Argon2id string. It never panics and rejects
// parameters argon2.IDKey would panic on or that exceed the bounds above.
func decodePHC(encoded string) (HashParams, []byte, []byte, bool) {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return HashParams{}, nil, nil, false
	}

	var p HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return HashParams{}, nil, nil, false
	}
	if p.Memory == 0 || p.Memory > maxMemory ||
		p.Iterations == 0 || p.Iterations > maxIterations ||
		p.Parallelism == 0 || p.Parallelism > maxParallelism ||
		p.Memory < 8*uint32(p.Parallelism) {
		return HashParams{}, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return HashParams{}, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < minKeyLength || len(key) > maxKeyLength {
		return HashParams{}, nil, nil, false
	}
	p.SaltLength = uint32(len(salt)) // #nosec G115 -- bounded by the string length
	p.KeyLength = uint32(len(key))   // #nosec G115 -- bounded above

	return p, salt, key, true
}
