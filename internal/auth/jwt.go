// Package auth verifies the bearer tokens issued by the identity provider and
// carries the resulting identity through request contexts.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens signed with the provider's shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Verify parses raw and returns the identity it names. The email may be empty;
// callers that need one decide how to treat its absence.
func (v *Verifier) Verify(raw string) (models.Identity, error) {
	if len(v.secret) == 0 || strings.TrimSpace(raw) == "" {
		return models.Identity{}, ErrUnauthorized
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(_ *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithTimeFunc(v.now), jwt.WithExpirationRequired())
	if err != nil || token == nil || !token.Valid {
		return models.Identity{}, ErrUnauthorized
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil || userID == uuid.Nil {
		return models.Identity{}, ErrUnauthorized
	}

	return models.Identity{
		UserID: userID,
		Email:  strings.TrimSpace(claims.Email),
	}, nil
}

// Issue signs a token for id valid for ttl. The server only verifies tokens;
// Issue backs local tooling and tests.
func (v *Verifier) Issue(id models.Identity, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", fmt.Errorf("jwt secret is empty")
	}
	if id.UserID == uuid.Nil {
		return "", fmt.Errorf("invalid token subject")
	}

	now := v.now().UTC()
	claims := tokenClaims{
		Email: id.Email,
		Role:  "authenticated",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
