package security

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestGenerateVerifyRoundTrip(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	tok, exp, err := Generate(opts, "u1")
	require.NoError(t, err)
	require.True(t, exp.After(time.Now()))

	uid, err := Verify(opts, tok)
	require.NoError(t, err)
	require.Equal(t, "u1", uid)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, _, err := Generate(DefaultOptions([]byte("secret")), "u1")
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("other")), tok)
	require.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))

	// Generate normalizes non-positive TTLs; mint an expired token by hand
	claims := jwtlib.MapClaims{
		"sub": "u1",
		"exp": time.Now().Add(-time.Minute).Unix(),
	}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(opts.Secret)
	require.NoError(t, err)

	_, err = Verify(opts, tok)
	require.Error(t, err)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	_, err := Verify(DefaultOptions([]byte("secret")), "  ")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyLegacyUserIDClaim(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	claims := jwtlib.MapClaims{
		"userId": "legacy-user",
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(opts.Secret)
	require.NoError(t, err)

	uid, err := Verify(opts, tok)
	require.NoError(t, err)
	require.Equal(t, "legacy-user", uid)
}

func TestVerifyRejectsMissingIdentity(t *testing.T) {
	opts := DefaultOptions([]byte("secret"))
	claims := jwtlib.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(opts.Secret)
	require.NoError(t, err)

	_, err = Verify(opts, tok)
	require.ErrorIs(t, err, ErrNoIdentity)
}

func TestVerifyRejectsAlgConfusion(t *testing.T) {
	// token signed with "none" must never verify
	tok, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone,
		jwtlib.MapClaims{"sub": "u1"}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = Verify(DefaultOptions([]byte("secret")), tok)
	require.Error(t, err)
}

func TestUnsupportedAlg(t *testing.T) {
	opts := Options{Secret: []byte("secret"), Alg: "RS256"}
	_, _, err := Generate(opts, "u1")
	require.Error(t, err)
	_, err = Verify(opts, "whatever")
	require.Error(t, err)
}
