// Package totpx generates and checks RFC 6238 codes and MFA backup codes.
package totpx

import (
	"bytes"
	"crypto/rand"
	"encoding/base32"
	"encoding/base64"
	"fmt"
	"image/png"
	"regexp"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// MinSecretBytes is the RFC 4226 lower bound on shared secret length.
	MinSecretBytes = 10
	// DefaultSecretBytes matches what authenticator apps generate.
	DefaultSecretBytes = 20

	period = 30
	skew   = 1
	qrSize = 256
)

var (
	b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)
	totpShape    = regexp.MustCompile(`^[0-9]{6}$`)
)

// Codec is a SHA1, 6 digit, 30 second TOTP codec accepting one step of
// clock drift either side.
type Codec struct {
	Issuer string
}

// NewCodec returns a codec whose provisioning URIs carry issuer.
func NewCodec(issuer string) *Codec {
	return &Codec{Issuer: issuer}
}

func (c *Codec) opts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// CreateSecret returns byteLength random bytes as unpadded base32.
func (c *Codec) CreateSecret(byteLength int) (string, error) {
	if byteLength < MinSecretBytes {
		return "", fmt.Errorf("totpx: secret must be at least %d bytes, got %d", MinSecretBytes, byteLength)
	}
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("totpx: failed to generate secret: %w", err)
	}
	return b32NoPadding.EncodeToString(buf), nil
}

// GenerateCode returns the code for the 30 second window containing t.
func (c *Codec) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, c.opts())
}

// VerifyCode accepts a six digit code matching the window containing t or
// either neighbour. Anything else, including a bad secret, is false.
func (c *Codec) VerifyCode(secret, code string, t time.Time) bool {
	if !totpShape.MatchString(code) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t, c.opts())
	return err == nil && ok
}

// IsTOTPShaped reports whether code is exactly six ASCII digits.
func IsTOTPShaped(code string) bool {
	return totpShape.MatchString(code)
}

// Key wraps an existing secret in an otp.Key for account.
func (c *Codec) Key(secret, account string) (*otp.Key, error) {
	raw, err := b32NoPadding.DecodeString(strings.ToUpper(strings.TrimRight(secret, "=")))
	if err != nil {
		return nil, fmt.Errorf("totpx: invalid secret: %w", err)
	}
	return totp.Generate(totp.GenerateOpts{
		Issuer:      c.Issuer,
		AccountName: account,
		Period:      period,
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
}

// ProvisioningURI returns the otpauth://totp/ URI authenticator apps scan.
func (c *Codec) ProvisioningURI(secret, account string) (string, error) {
	key, err := c.Key(secret, account)
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}

// QRCodePNG renders the provisioning URI as a PNG data URI.
func (c *Codec) QRCodePNG(secret, account string) (string, error) {
	key, err := c.Key(secret, account)
	if err != nil {
		return "", err
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("totpx: failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("totpx: failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
