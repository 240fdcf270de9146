package jwtx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T, alg, kid string) jwtx.Signer {
	t.Helper()
	var (
		pemData []byte
		err     error
	)
	if alg == jwtx.AlgorithmEdDSA {
		pemData, err = cryptox.GenerateEd25519Key()
	} else {
		pemData, err = cryptox.GenerateES256Key()
	}
	require.NoError(t, err)
	s, err := jwtx.NewSigner(alg, kid, pemData)
	require.NoError(t, err)
	return s
}

func TestVerifier(t *testing.T) {
	signer := newSigner(t, jwtx.AlgorithmEdDSA, "k1")
	keys := jwtx.NewKeySet()
	require.NoError(t, keys.AddSigner(signer))
	v := jwtx.NewVerifier(keys, jwtx.AlgorithmEdDSA, "purse-auth", []string{"purse-api"})

	now := time.Now()
	sign := func(mutate func(*jwtx.Claims)) string {
		c := testClaims(now)
		if mutate != nil {
			mutate(&c)
		}
		tok, err := signer.Sign(c)
		require.NoError(t, err)
		return tok
	}

	t.Run("valid", func(t *testing.T) {
		c, err := v.Verify(sign(nil))
		require.NoError(t, err)
		require.Equal(t, "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZV", c.Subject)
		require.Equal(t, "01HQ7T3Z1MZ0JQ3M6MZQ1FQ3ZW", c.SID)
		require.NotEmpty(t, c.ID)
		require.WithinDuration(t, now.Add(jwtx.DefaultAccessTokenTTL), c.ExpiresAtTime(), time.Second)
	})

	t.Run("expired", func(t *testing.T) {
		_, err := v.Verify(sign(func(c *jwtx.Claims) {
			c.IssuedAt = jwt.NewNumericDate(now.Add(-time.Hour))
			c.NotBefore = c.IssuedAt
			c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))
		}))
		require.ErrorIs(t, err, jwtx.ErrExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := v.Verify(sign(func(c *jwtx.Claims) { c.Issuer = "evil" }))
		require.ErrorIs(t, err, jwtx.ErrInvalid)
	})

	t.Run("wrong audience", func(t *testing.T) {
		_, err := v.Verify(sign(func(c *jwtx.Claims) { c.Audience = jwt.ClaimStrings{"other"} }))
		require.ErrorIs(t, err, jwtx.ErrInvalid)
	})

	t.Run("missing exp", func(t *testing.T) {
		_, err := v.Verify(sign(func(c *jwtx.Claims) { c.ExpiresAt = nil }))
		require.Error(t, err)
	})

	t.Run("tampered payload", func(t *testing.T) {
		parts := strings.Split(sign(nil), ".")
		other := strings.Split(sign(func(c *jwtx.Claims) { c.Roles = []string{"admin"} }), ".")
		_, err := v.Verify(parts[0] + "." + other[1] + "." + parts[2])
		require.ErrorIs(t, err, jwtx.ErrInvalid)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := v.Verify("not.a.jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})

	t.Run("unknown kid", func(t *testing.T) {
		stranger := newSigner(t, jwtx.AlgorithmEdDSA, "k2")
		tok, err := stranger.Sign(testClaims(now))
		require.NoError(t, err)
		_, err = v.Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrInvalid)
	})

	t.Run("algorithm not allowed", func(t *testing.T) {
		es := newSigner(t, jwtx.AlgorithmES256, "k3")
		require.NoError(t, keys.AddSigner(es))
		tok, err := es.Sign(testClaims(now))
		require.NoError(t, err)
		_, err = v.Verify(tok)
		require.Error(t, err)
	})
}

func TestNewSigner_Errors(t *testing.T) {
	ed, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)

	_, err = jwtx.NewSigner(jwtx.AlgorithmES256, "k", ed)
	require.Error(t, err, "key type must match algorithm")
	_, err = jwtx.NewSigner("RS256", "k", ed)
	require.Error(t, err)
	_, err = jwtx.NewSigner(jwtx.AlgorithmEdDSA, "k", []byte("garbage"))
	require.Error(t, err)
}

func TestKeySet_JWKS(t *testing.T) {
	keys := jwtx.NewKeySet()
	require.False(t, keys.IsReady())

	ed := newSigner(t, jwtx.AlgorithmEdDSA, "ed")
	es := newSigner(t, jwtx.AlgorithmES256, "es")
	require.NoError(t, keys.AddSigner(ed))
	require.NoError(t, keys.AddSigner(es))
	require.NoError(t, keys.AddSigner(ed), "re-adding a kid replaces it")
	require.True(t, keys.IsReady())

	jwks := keys.PublicJWKS()
	require.Len(t, jwks.Keys, 2)
	for _, k := range jwks.Keys {
		switch k.Kid {
		case "ed":
			require.Equal(t, "OKP", k.Kty)
			require.Equal(t, "Ed25519", k.Crv)
			require.Empty(t, k.Y)
		case "es":
			require.Equal(t, "EC", k.Kty)
			require.Equal(t, "P-256", k.Crv)
			require.Len(t, k.X, 43)
			require.Len(t, k.Y, 43)
		}
	}

	// A verifier fed only the published JWKS accepts tokens.
	remote := jwtx.NewKeySet()
	for _, k := range jwks.Keys {
		require.NoError(t, remote.AddJWK(k))
	}
	tok, err := es.Sign(testClaims(time.Now()))
	require.NoError(t, err)
	_, err = jwtx.NewVerifier(remote, jwtx.AlgorithmES256, "purse-auth", []string{"purse-api"}).Verify(tok)
	require.NoError(t, err)

	_, err = keys.Get("missing")
	require.ErrorIs(t, err, jwtx.ErrNoKey)
	require.Error(t, remote.AddJWK(jwtx.JWK{Kty: "RSA", Kid: "rsa"}))
}
