package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrUnknownKID = errors.New("jwtx: unknown kid")
	ErrInvalid    = errors.New("jwtx: invalid token")
	ErrExpired    = errors.New("jwtx: token expired")
)

// DefaultLeeway tolerates small clock skew between instances.
const DefaultLeeway = 30 * time.Second

// KeySetVerifier checks signatures against a KeySet and enforces iss, aud
// and exp.
type KeySetVerifier struct {
	keys   *KeySet
	parser *jwt.Parser
}

// NewVerifier returns a verifier accepting alg-signed tokens from issuer.
// Tokens must name the first audience entry, if any.
func NewVerifier(keys *KeySet, alg, issuer string, audience []string) *KeySetVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{alg}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(DefaultLeeway),
	}
	if len(audience) > 0 {
		opts = append(opts, jwt.WithAudience(audience[0]))
	}
	return &KeySetVerifier{keys: keys, parser: jwt.NewParser(opts...)}
}

// Verify parses tokenStr and returns its claims when the signature and
// registered claims check out.
func (v *KeySetVerifier) Verify(tokenStr string) (Claims, error) {
	var claims Claims
	_, err := v.parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrUnknownKID
		}
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}
		return pub, nil
	})
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return Claims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Claims{}, ErrExpired
	default:
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
}
