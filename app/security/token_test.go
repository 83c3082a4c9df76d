package security_test

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-contacts/app/security"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCodec_IssueAndVerify(t *testing.T) {
	codec, err := security.NewTokenCodec("test-secret")
	require.NoError(t, err)

	token, err := codec.Issue("alice", security.PurposeAccess, 15*time.Minute)
	require.NoError(t, err)

	claims, err := codec.Verify(token, security.PurposeAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, security.PurposeAccess, claims.Purpose)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), claims.ExpiresAtTime(), 2*time.Second)
}

func TestTokenCodec_TokensAreUnique(t *testing.T) {
	codec, err := security.NewTokenCodec("test-secret")
	require.NoError(t, err)

	first, err := codec.Issue("alice", security.PurposeRefresh, time.Hour)
	require.NoError(t, err)
	second, err := codec.Issue("alice", security.PurposeRefresh, time.Hour)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenCodec_WrongPurpose(t *testing.T) {
	codec, err := security.NewTokenCodec("test-secret")
	require.NoError(t, err)

	token, err := codec.Issue("alice", security.PurposeRefresh, time.Hour)
	require.NoError(t, err)

	_, err = codec.Verify(token, security.PurposeAccess)
	assert.ErrorIs(t, err, security.ErrTokenWrongPurpose)
}

func TestTokenCodec_Expired(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer, err := security.NewTokenCodec("test-secret", security.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	verifier, err := security.NewTokenCodec("test-secret")
	require.NoError(t, err)

	token, err := issuer.Issue("alice", security.PurposeAccess, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token, security.PurposeAccess)
	assert.ErrorIs(t, err, security.ErrTokenExpired)
}

func TestTokenCodec_InvalidSignature(t *testing.T) {
	issuer, err := security.NewTokenCodec("other-secret")
	require.NoError(t, err)
	verifier, err := security.NewTokenCodec("test-secret")
	require.NoError(t, err)

	token, err := issuer.Issue("alice", security.PurposeAccess, time.Hour)
	require.NoError(t, err)

	_, err = verifier.Verify(token, security.PurposeAccess)
	assert.ErrorIs(t, err, security.ErrTokenInvalid)

	_, err = verifier.Verify("not-a-token", security.PurposeAccess)
	assert.ErrorIs(t, err, security.ErrTokenInvalid)
}

func TestTokenCodec_RejectsNonHMAC(t *testing.T) {
	codec, err := security.NewTokenCodec("test-secret")
	require.NoError(t, err)

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	claims := &security.TokenClaims{
		Purpose: security.PurposeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(privateKey)
	require.NoError(t, err)

	_, err = codec.Verify(tokenString, security.PurposeAccess)
	assert.ErrorIs(t, err, security.ErrTokenInvalid)
}

func TestNewTokenCodec_RequiresSecret(t *testing.T) {
	_, err := security.NewTokenCodec("")
	assert.Error(t, err)
}
