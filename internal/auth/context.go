package auth

import (
	"context"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

type identityContextKey string

const identityKey identityContextKey = "auth_identity"

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(models.Identity)
	return identity, ok
}
