package models

import (
	"time"

	"github.com/google/uuid"
)

type Favorite struct {
	UserID    uuid.UUID `json:"user_id"`
	BookID    int64     `json:"book_id"`
	Book      *Book     `json:"book,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReadingPlanItem is one entry of a user's ordered "read later" list.
type ReadingPlanItem struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	BookID        int64      `json:"book_id"`
	Book          *Book      `json:"book,omitempty"`
	OrderPosition int        `json:"order_position"`
	IsCompleted   bool       `json:"is_completed"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type ReadingProgress struct {
	UserID             uuid.UUID `json:"user_id"`
	BookID             int64     `json:"book_id"`
	Book               *Book     `json:"book,omitempty"`
	StartedReadingAt   time.Time `json:"started_reading_at"`
	LastAccessedAt     time.Time `json:"last_accessed_at"`
	IsCurrentlyReading bool      `json:"is_currently_reading"`
}

// ChatMessage is an archived AI assistant exchange.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    *string   `json:"book_id,omitempty"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	ImageURL  *string   `json:"image_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
