package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PortNumber53/readflash/backend/internal/apperr"
	"github.com/PortNumber53/readflash/backend/internal/models"
)

// LibraryStore holds a reader's favorites, reading plan and progress.
type LibraryStore interface {
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error)
	AddFavorite(ctx context.Context, userID uuid.UUID, bookID int64) error
	RemoveFavorite(ctx context.Context, userID uuid.UUID, bookID int64) error

	ListReadingPlan(ctx context.Context, userID uuid.UUID) ([]models.ReadingPlanItem, error)
	AddToReadingPlan(ctx context.Context, userID uuid.UUID, bookID int64) (models.ReadingPlanItem, error)
	SetReadingPlanCompleted(ctx context.Context, userID, itemID uuid.UUID, completed bool) (models.ReadingPlanItem, error)
	RemoveFromReadingPlan(ctx context.Context, userID, itemID uuid.UUID) error
	ReorderReadingPlan(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) error

	ListCurrentlyReading(ctx context.Context, userID uuid.UUID) ([]models.ReadingProgress, error)
	MarkReading(ctx context.Context, userID uuid.UUID, bookID int64) (models.ReadingProgress, error)
	StopReading(ctx context.Context, userID uuid.UUID, bookID int64) error
}

// Library serves the per-user shelves.
type Library struct {
	store LibraryStore
	log   *zap.Logger
}

func NewLibrary(store LibraryStore, log *zap.Logger) *Library {
	return &Library{store: store, log: nopIfNil(log)}
}

type bookRef struct {
	BookID int64 `json:"book_id"`
}

func (b bookRef) validate() error {
	if b.BookID <= 0 {
		return apperr.New(apperr.KindValidation, "book_id is required")
	}
	return nil
}

func (h *Library) ListFavorites(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	favs, err := h.store.ListFavorites(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Favorites not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"favorites": favs})
}

// AddFavorite is idempotent: favoriting twice answers 201 both times.
func (h *Library) AddFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req bookRef
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.store.AddFavorite(r.Context(), id.UserID, req.BookID); err != nil {
		writeError(w, h.log, storeError(err, "Book not found"))
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *Library) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	bookID, err := pathBookID(r, "bookID")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.store.RemoveFavorite(r.Context(), id.UserID, bookID); err != nil {
		writeError(w, h.log, storeError(err, "Favorite not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Library) ListReadingPlan(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	items, err := h.store.ListReadingPlan(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Reading plan not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Library) AddToReadingPlan(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req bookRef
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, h.log, err)
		return
	}
	item, err := h.store.AddToReadingPlan(r.Context(), id.UserID, req.BookID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Book not found"))
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

type completionRequest struct {
	IsCompleted *bool `json:"is_completed"`
}

func (h *Library) UpdateReadingPlanItem(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	itemID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req completionRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if req.IsCompleted == nil {
		writeError(w, h.log, apperr.New(apperr.KindValidation, "is_completed is required"))
		return
	}
	item, err := h.store.SetReadingPlanCompleted(r.Context(), id.UserID, itemID, *req.IsCompleted)
	if err != nil {
		writeError(w, h.log, storeError(err, "Reading plan item not found"))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *Library) RemoveFromReadingPlan(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	itemID, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.store.RemoveFromReadingPlan(r.Context(), id.UserID, itemID); err != nil {
		writeError(w, h.log, storeError(err, "Reading plan item not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reorderRequest struct {
	ItemIDs []uuid.UUID `json:"item_ids"`
}

// ReorderReadingPlan assigns positions in the order of item_ids.
func (h *Library) ReorderReadingPlan(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	var req reorderRequest
	if err := decodeJSON(w, r, 0, &req); err != nil {
		writeError(w, h.log, err)
		return
	}
	if len(req.ItemIDs) == 0 {
		writeError(w, h.log, apperr.New(apperr.KindValidation, "item_ids is required"))
		return
	}
	seen := make(map[uuid.UUID]struct{}, len(req.ItemIDs))
	for _, itemID := range req.ItemIDs {
		if _, dup := seen[itemID]; dup {
			writeError(w, h.log, apperr.New(apperr.KindValidation, "item_ids must not repeat"))
			return
		}
		seen[itemID] = struct{}{}
	}
	if err := h.store.ReorderReadingPlan(r.Context(), id.UserID, req.ItemIDs); err != nil {
		writeError(w, h.log, storeError(err, "Reading plan item not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Library) ListReadingProgress(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	progress, err := h.store.ListCurrentlyReading(r.Context(), id.UserID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Reading progress not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reading": progress})
}

func (h *Library) MarkReading(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	bookID, err := pathBookID(r, "bookID")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	p, err := h.store.MarkReading(r.Context(), id.UserID, bookID)
	if err != nil {
		writeError(w, h.log, storeError(err, "Book not found"))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Library) StopReading(w http.ResponseWriter, r *http.Request) {
	id, err := requireIdentity(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	bookID, err := pathBookID(r, "bookID")
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if err := h.store.StopReading(r.Context(), id.UserID, bookID); err != nil {
		writeError(w, h.log, storeError(err, "Book is not being read"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
