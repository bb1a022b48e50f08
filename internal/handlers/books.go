package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/content"
	"github.com/PortNumber53/readflash/backend/internal/freeread"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

// CatalogStore reads the book catalog.
type CatalogStore interface {
	ListBooks(ctx context.Context, f models.BookFilter) ([]models.Book, error)
	GetBook(ctx context.Context, id int64) (models.Book, error)
	ListAreas(ctx context.Context) ([]models.AreaCount, error)
}

// ReadGate decides whether a caller may open a book now.
type ReadGate interface {
	Begin(ctx context.Context, userID uuid.UUID, bookID int64, subscribed bool) (freeread.Decision, error)
	Claim(ctx context.Context, userID uuid.UUID, bookID int64, subscribed bool) (freeread.Decision, error)
}

// ProgressMarker records that a caller opened a book.
type ProgressMarker interface {
	MarkReading(ctx context.Context, userID uuid.UUID, bookID int64) (models.ReadingProgress, error)
}

// ListBooks lists the catalog. Query parameters: area, q, limit, offset.
func ListBooks(catalog CatalogStore, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.BookFilter{
			Area:   strings.TrimSpace(q.Get("area")),
			Search: strings.TrimSpace(q.Get("q")),
		}
		var err error
		if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
			writeError(w, log, err)
			return
		}
		if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
			writeError(w, log, err)
			return
		}

		books, err := catalog.ListBooks(r.Context(), filter)
		if err != nil {
			writeError(w, log, storeError(err, "Books not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"books": books})
	}
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.New(apperr.KindValidation, "limit and offset must be non-negative integers")
	}
	return n, nil
}

func GetBook(catalog CatalogStore, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathBookID(r, "id")
		if err != nil {
			writeError(w, log, err)
			return
		}
		book, err := catalog.GetBook(r.Context(), id)
		if err != nil {
			writeError(w, log, storeError(err, "Book not found"))
			return
		}
		writeJSON(w, http.StatusOK, book)
	}
}

func ListAreas(catalog CatalogStore, log *zap.Logger) http.HandlerFunc {
	log = nopIfNil(log)
	return func(w http.ResponseWriter, r *http.Request) {
		areas, err := catalog.ListAreas(r.Context())
		if err != nil {
			writeError(w, log, storeError(err, "Areas not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"areas": areas})
	}
}

type readResponse struct {
	freeread.Decision
	Content content.Content `json:"content,omitempty"`
}

// Reading serves the read and download endpoints.
type Reading struct {
	catalog      CatalogStore
	entitlements EntitlementReader
	gate         ReadGate
	progress     ProgressMarker
	log          *zap.Logger
}

func NewReading(catalog CatalogStore, entitlements EntitlementReader, gate ReadGate, progress ProgressMarker, log *zap.Logger) *Reading {
	return &Reading{catalog: catalog, entitlements: entitlements, gate: gate, progress: progress, log: nopIfNil(log)}
}

// Start asks to read a book. Subscribers get the content at once; others get
// the countdown for today's free read (202) or a 403 once it is used.
func (h *Reading) Start(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.gate.Begin)
}

// Claim completes the free-read countdown and returns the content.
func (h *Reading) Claim(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, h.gate.Claim)
}

type gateStep func(ctx context.Context, userID uuid.UUID, bookID int64, subscribed bool) (freeread.Decision, error)

func (h *Reading) serve(w http.ResponseWriter, r *http.Request, step gateStep) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	bookID, err := pathBookID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	book, err := h.catalog.GetBook(r.Context(), bookID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Book not found"))
		return
	}
	if book.ContentLink == nil {
		writeError(w, h.log, apperr.New(apperr.KindNotFound, "This book has no readable content"))
		return
	}
	c, err := content.Classify(*book.ContentLink)
	if err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.KindNotFound, "This book has no readable content", err))
		return
	}

	ent, err := entitlementFor(r.Context(), h.entitlements, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	decision, err := step(r.Context(), id.UserID, bookID, ent.Subscribed)
	switch {
	case errors.Is(err, freeread.ErrCountdownActive):
		writeJSON(w, http.StatusAccepted, readResponse{Decision: decision})
		return
	case errors.Is(err, freeread.ErrNotStarted):
		writeError(w, h.log, apperr.Wrap(apperr.KindConflict, "Start the free read countdown first", err))
		return
	case errors.Is(err, freeread.ErrDailyLimitReached):
		writeError(w, h.log, apperr.Wrap(apperr.KindForbidden, "Today's free read was already used", err))
		return
	case err != nil:
		writeError(w, h.log, apperr.Wrap(apperr.KindInternal, "Failed to check free read", err))
		return
	}

	switch decision.Status {
	case freeread.StatusWaiting:
		writeJSON(w, http.StatusAccepted, readResponse{Decision: decision})
	case freeread.StatusExhausted:
		writeError(w, h.log, apperr.New(apperr.KindForbidden, "Today's free read was already used"))
	default:
		if _, err := h.progress.MarkReading(r.Context(), id.UserID, bookID); err != nil {
			h.log.Warn("failed to mark book as reading", zap.Int64("book_id", bookID), zap.Error(err))
		}
		writeJSON(w, http.StatusOK, readResponse{Decision: decision, Content: c})
	}
}

// Download returns the book's download link to premium subscribers.
func (h *Reading) Download(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	bookID, err := pathBookID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	ent, err := entitlementFor(r.Context(), h.entitlements, id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if !ent.CanDownload() {
		writeError(w, h.log, apperr.New(apperr.KindForbidden, "Downloads require the premium plan"))
		return
	}

	book, err := h.catalog.GetBook(r.Context(), bookID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Book not found"))
		return
	}
	if book.DownloadURL == nil || strings.TrimSpace(*book.DownloadURL) == "" {
		writeError(w, h.log, apperr.New(apperr.KindNotFound, "This book has no download available"))
		return
	}
	writeJSON(w, http.StatusOK, urlResponse{URL: *book.DownloadURL})
}
