package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

const bookColumns = `b.id, b.title, b.author, b.summary, b.image_url, b.content_link, b.download_url, b.benefits, b.area, b.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner, extra ...any) (models.Book, error) {
	var (
		b           models.Book
		imageURL    sql.NullString
		contentLink sql.NullString
		downloadURL sql.NullString
		benefits    sql.NullString
		area        sql.NullString
	)
	dest := append([]any{
		&b.ID, &b.Title, &b.Author, &b.Summary,
		&imageURL, &contentLink, &downloadURL, &benefits, &area,
		&b.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return models.Book{}, err
	}
	b.ImageURL = nullStringPtr(imageURL)
	b.ContentLink = nullStringPtr(contentLink)
	b.DownloadURL = nullStringPtr(downloadURL)
	b.Benefits = nullStringPtr(benefits)
	b.Area = nullStringPtr(area)
	b.HasDownload = b.DownloadURL != nil && *b.DownloadURL != ""
	return b, nil
}

// ListBooks returns catalog entries ordered by title, optionally narrowed to
// an area and a case-insensitive title/author search.
func (s *Store) ListBooks(ctx context.Context, f models.BookFilter) ([]models.Book, error) {
	var (
		where []string
		args  []any
	)
	if area := strings.TrimSpace(f.Area); area != "" {
		args = append(args, area)
		where = append(where, fmt.Sprintf("b.area = $%d", len(args)))
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		args = append(args, "%"+search+"%")
		where = append(where, fmt.Sprintf("(b.title ILIKE $%[1]d OR b.author ILIKE $%[1]d)", len(args)))
	}

	query := `SELECT ` + bookColumns + ` FROM books b`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, clampLimit(f.Limit), offset)
	query += fmt.Sprintf(` ORDER BY b.title ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list books: %w", err)
	}
	defer rows.Close()

	books := []models.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan book: %w", err)
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate books: %w", err)
	}
	return books, nil
}

// GetBook returns a single catalog entry.
func (s *Store) GetBook(ctx context.Context, id int64) (models.Book, error) {
	b, err := scanBook(s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books b WHERE b.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Book{}, ErrNotFound
	}
	if err != nil {
		return models.Book{}, fmt.Errorf("store: get book %d: %w", id, err)
	}
	return b, nil
}

// ListAreas returns every catalog area with its book count.
func (s *Store) ListAreas(ctx context.Context) ([]models.AreaCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT area, COUNT(*)
FROM books
WHERE area IS NOT NULL AND area <> ''
GROUP BY area
ORDER BY area ASC
`)
	if err != nil {
		return nil, fmt.Errorf("store: list areas: %w", err)
	}
	defer rows.Close()

	areas := []models.AreaCount{}
	for rows.Next() {
		var a models.AreaCount
		if err := rows.Scan(&a.Area, &a.Books); err != nil {
			return nil, fmt.Errorf("store: scan area: %w", err)
		}
		areas = append(areas, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate areas: %w", err)
	}
	return areas, nil
}
