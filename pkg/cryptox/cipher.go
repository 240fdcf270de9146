package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// SecretKeySize is the AES-256 key length in bytes.
const SecretKeySize = 32

const (
	gcmNonceSize = 12
	gcmTagSize   = 16
)

var (
	ErrInvalidKey         = errors.New("cryptox: secret key must be 32 bytes")
	ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")
	ErrDecrypt            = errors.New("cryptox: decryption failed")
)

// SecretCipher seals small secrets (TOTP secrets, signing keys) with
// AES-256-GCM. The key is fixed at construction.
//
// Payload layout, base64 (std, padded): nonce(12) || tag(16) || ciphertext
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher returns a cipher bound to key. The key is copied.
func NewSecretCipher(key []byte) (*SecretCipher, error) {
	if len(key) != SecretKeySize {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(append([]byte(nil), key...))
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to create GCM: %w", err)
	}
	return &SecretCipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *SecretCipher) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: failed to generate nonce: %w", err)
	}

	// Seal emits ciphertext || tag; move the tag in front of the ciphertext.
	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	ct, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	out := make([]byte, 0, gcmNonceSize+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt. It fails closed: any
// tampering, truncation or encoding damage is an error.
func (c *SecretCipher) Decrypt(payload string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, ErrDecrypt
	}
	if len(raw) < gcmNonceSize+gcmTagSize {
		return nil, ErrCiphertextTooShort
	}

	nonce := raw[:gcmNonceSize]
	tag := raw[gcmNonceSize : gcmNonceSize+gcmTagSize]
	ct := raw[gcmNonceSize+gcmTagSize:]

	sealed := make([]byte, 0, len(ct)+gcmTagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

// EncryptString is Encrypt for string secrets.
func (c *SecretCipher) EncryptString(s string) (string, error) {
	return c.Encrypt([]byte(s))
}

// DecryptString is Decrypt for string secrets.
func (c *SecretCipher) DecryptString(payload string) (string, error) {
	b, err := c.Decrypt(payload)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParseSecretKey decodes a 32-byte key given as hex or base64 (std or url,
// padded or not).
func ParseSecretKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidKey
	}
	if len(s) == hex.EncodedLen(SecretKeySize) {
		if key, err := hex.DecodeString(s); err == nil {
			return key, nil
		}
	}
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(s); err == nil && len(key) == SecretKeySize {
			return key, nil
		}
	}
	return nil, ErrInvalidKey
}

// LoadSecretKey resolves the encryption key from an inline value or a file.
// The inline value wins when both are set.
func LoadSecretKey(value, file string) ([]byte, error) {
	if value != "" {
		return ParseSecretKey(value)
	}
	if file == "" {
		return nil, ErrInvalidKey
	}
	data, err := os.ReadFile(file) // #nosec G304 -- operator supplied path
	if err != nil {
		return nil, fmt.Errorf("cryptox: failed to read secret key file: %w", err)
	}
	return ParseSecretKey(string(data))
}

// GenerateSecretKey returns a random 32-byte key.
func GenerateSecretKey() ([]byte, error) {
	key := make([]byte, SecretKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("cryptox: failed to generate secret key: %w", err)
	}
	return key, nil
}
