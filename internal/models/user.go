package models

import "github.com/google/uuid"

// Identity is the authenticated caller extracted from a verified access token.
type Identity struct {
	UserID uuid.UUID
	Email  string
}
