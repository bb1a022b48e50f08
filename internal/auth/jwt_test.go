package auth

import (
	"context"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

var reader = models.Identity{
	UserID: uuid.MustParse("0b6f1f9e-7d8a-4c43-9a51-2f4b8d6e1a10"),
	Email:  "leitor@example.com",
}

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue(reader, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, reader, id)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue(reader, time.Minute)
	require.NoError(t, err)

	v.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := NewVerifier("other").Issue(reader, time.Hour)
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsNonUUIDSubject(t *testing.T) {
	claims := tokenClaims{
		Email: "x@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := tokenClaims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   reader.UserID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewVerifier("secret").Verify(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", tok)

	tok, ok = BearerToken("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", tok)

	_, ok = BearerToken("Basic abc")
	assert.False(t, ok)
	_, ok = BearerToken("Bearer ")
	assert.False(t, ok)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	got, ok := IdentityFromContext(WithIdentity(context.Background(), reader))
	assert.True(t, ok)
	assert.Equal(t, reader, got)
}
