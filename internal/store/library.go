package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// constraintError maps Postgres constraint violations onto store sentinels.
func constraintError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return ErrDuplicate
		case pqForeignKeyViolation:
			return ErrNotFound
		}
	}
	return err
}

// ListFavorites returns the user's favorite books, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID) ([]models.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+bookColumns+`, f.created_at
FROM book_favorites f
JOIN books b ON b.id = f.book_id
WHERE f.user_id = $1
ORDER BY f.created_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list favorites: %w", err)
	}
	defer rows.Close()

	favorites := []models.Favorite{}
	for rows.Next() {
		var createdAt sql.NullTime
		b, err := scanBook(rows, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan favorite: %w", err)
		}
		book := b
		favorites = append(favorites, models.Favorite{
			UserID:    userID,
			BookID:    b.ID,
			Book:      &book,
			CreatedAt: createdAt.Time,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate favorites: %w", err)
	}
	return favorites, nil
}

// AddFavorite marks a book as favorite. Adding an existing favorite is a no-op.
func (s *Store) AddFavorite(ctx context.Context, userID uuid.UUID, bookID int64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO book_favorites (user_id, book_id, created_at)
VALUES ($1, $2, NOW())
ON CONFLICT (user_id, book_id) DO NOTHING
`, userID, bookID)
	if err != nil {
		return fmt.Errorf("store: add favorite: %w", constraintError(err))
	}
	return nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID uuid.UUID, bookID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM book_favorites WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	if err != nil {
		return fmt.Errorf("store: remove favorite: %w", err)
	}
	return expectAffected(res)
}

const planColumns = `p.id, p.user_id, p.book_id, p.order_position, p.is_completed, p.completed_at, p.created_at`

func scanPlanItem(row rowScanner) (models.ReadingPlanItem, error) {
	var (
		item        models.ReadingPlanItem
		completedAt sql.NullTime
	)
	if err := row.Scan(&item.ID, &item.UserID, &item.BookID, &item.OrderPosition, &item.IsCompleted, &completedAt, &item.CreatedAt); err != nil {
		return models.ReadingPlanItem{}, err
	}
	item.CompletedAt = nullTimePtr(completedAt)
	return item, nil
}

// ListReadingPlan returns the user's plan in display order with book details.
func (s *Store) ListReadingPlan(ctx context.Context, userID uuid.UUID) ([]models.ReadingPlanItem, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+bookColumns+`, `+planColumns+`
FROM reading_plan p
JOIN books b ON b.id = p.book_id
WHERE p.user_id = $1
ORDER BY p.order_position ASC, p.created_at ASC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list reading plan: %w", err)
	}
	defer rows.Close()

	items := []models.ReadingPlanItem{}
	for rows.Next() {
		var (
			item        models.ReadingPlanItem
			completedAt sql.NullTime
		)
		b, err := scanBook(rows,
			&item.ID, &item.UserID, &item.BookID, &item.OrderPosition, &item.IsCompleted, &completedAt, &item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("store: scan reading plan: %w", err)
		}
		book := b
		item.CompletedAt = nullTimePtr(completedAt)
		item.Book = &book
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate reading plan: %w", err)
	}
	return items, nil
}

// AddToReadingPlan appends a book to the end of the user's plan. A book that is
// already planned yields ErrDuplicate.
func (s *Store) AddToReadingPlan(ctx context.Context, userID uuid.UUID, bookID int64) (models.ReadingPlanItem, error) {
	row := s.db.QueryRowContext(ctx, `
INSERT INTO reading_plan AS p (id, user_id, book_id, order_position, is_completed, created_at)
SELECT $1::uuid, $2::uuid, $3::bigint, COALESCE(MAX(order_position) + 1, 0), FALSE, NOW()
FROM reading_plan
WHERE user_id = $2::uuid
RETURNING `+planColumns, uuid.New(), userID, bookID)

	item, err := scanPlanItem(row)
	if err != nil {
		return models.ReadingPlanItem{}, fmt.Errorf("store: add to reading plan: %w", constraintError(err))
	}
	return item, nil
}

// SetReadingPlanCompleted toggles completion, stamping or clearing completed_at.
func (s *Store) SetReadingPlanCompleted(ctx context.Context, userID, itemID uuid.UUID, completed bool) (models.ReadingPlanItem, error) {
	row := s.db.QueryRowContext(ctx, `
UPDATE reading_plan AS p
SET is_completed = $3::boolean,
    completed_at = CASE WHEN $3::boolean THEN NOW() ELSE NULL END
WHERE p.id = $1 AND p.user_id = $2
RETURNING `+planColumns, itemID, userID, completed)

	item, err := scanPlanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReadingPlanItem{}, ErrNotFound
	}
	if err != nil {
		return models.ReadingPlanItem{}, fmt.Errorf("store: update reading plan: %w", err)
	}
	return item, nil
}

func (s *Store) RemoveFromReadingPlan(ctx context.Context, userID, itemID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reading_plan WHERE id = $1 AND user_id = $2`, itemID, userID)
	if err != nil {
		return fmt.Errorf("store: remove from reading plan: %w", err)
	}
	return expectAffected(res)
}

// ReorderReadingPlan assigns positions following the order of itemIDs. All
// updates happen in one transaction; an id that does not belong to the user
// aborts the reorder with ErrNotFound.
func (s *Store) ReorderReadingPlan(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin reorder tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for position, id := range itemIDs {
		res, err := tx.ExecContext(ctx,
			`UPDATE reading_plan SET order_position = $1 WHERE id = $2 AND user_id = $3`,
			position, id, userID,
		)
		if err != nil {
			return fmt.Errorf("store: reorder reading plan: %w", err)
		}
		if err := expectAffected(res); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit reorder tx: %w", err)
	}
	return nil
}

// ListCurrentlyReading returns books the user is reading, most recently accessed first.
func (s *Store) ListCurrentlyReading(ctx context.Context, userID uuid.UUID) ([]models.ReadingProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT `+bookColumns+`, r.started_reading_at, r.last_accessed_at
FROM book_reading_progress r
JOIN books b ON b.id = r.book_id
WHERE r.user_id = $1 AND r.is_currently_reading
ORDER BY r.last_accessed_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list reading progress: %w", err)
	}
	defer rows.Close()

	progress := []models.ReadingProgress{}
	for rows.Next() {
		p := models.ReadingProgress{UserID: userID, IsCurrentlyReading: true}
		b, err := scanBook(rows, &p.StartedReadingAt, &p.LastAccessedAt)
		if err != nil {
			return nil, fmt.Errorf("store: scan reading progress: %w", err)
		}
		book := b
		p.BookID = b.ID
		p.Book = &book
		progress = append(progress, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate reading progress: %w", err)
	}
	return progress, nil
}

// MarkReading records that the user opened a book, keeping the first start time.
func (s *Store) MarkReading(ctx context.Context, userID uuid.UUID, bookID int64) (models.ReadingProgress, error) {
	p := models.ReadingProgress{}
	err := s.db.QueryRowContext(ctx, `
INSERT INTO book_reading_progress (user_id, book_id, started_reading_at, last_accessed_at, is_currently_reading)
VALUES ($1, $2, NOW(), NOW(), TRUE)
ON CONFLICT (user_id, book_id) DO UPDATE SET
  last_accessed_at = NOW(),
  is_currently_reading = TRUE
RETURNING user_id, book_id, started_reading_at, last_accessed_at, is_currently_reading
`, userID, bookID).Scan(&p.UserID, &p.BookID, &p.StartedReadingAt, &p.LastAccessedAt, &p.IsCurrentlyReading)
	if err != nil {
		return models.ReadingProgress{}, fmt.Errorf("store: mark reading: %w", constraintError(err))
	}
	return p, nil
}

func (s *Store) StopReading(ctx context.Context, userID uuid.UUID, bookID int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE book_reading_progress
SET is_currently_reading = FALSE, last_accessed_at = NOW()
WHERE user_id = $1 AND book_id = $2
`, userID, bookID)
	if err != nil {
		return fmt.Errorf("store: stop reading: %w", err)
	}
	return expectAffected(res)
}

// SaveChatMessage archives an assistant exchange.
func (s *Store) SaveChatMessage(ctx context.Context, msg models.ChatMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ai_chat_history (id, user_id, book_id, message, response, image_url, created_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW())
`, msg.ID, msg.UserID, nullString(msg.BookID), msg.Message, msg.Response, nullString(msg.ImageURL))
	if err != nil {
		return fmt.Errorf("store: save chat message: %w", err)
	}
	return nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
