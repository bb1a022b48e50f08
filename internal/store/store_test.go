package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

var (
	testUser = uuid.MustParse("0b6f7d5e-3c7a-4a58-8f0c-1d2e3f4a5b6c")
	testNow  = time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	return &Store{db: db}, mock
}

func entitlementRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "email", "stripe_customer_id", "subscribed", "subscription_tier", "subscription_end", "reconciled_at", "updated_at"})
}

func TestNewStoreValidation(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

func TestUpsertEntitlementWritesRow(t *testing.T) {
	s, mock := newMockStore(t)
	customer := "cus_1"
	end := testNow.Add(30 * 24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO subscribers`)).
		WithArgs(testUser, "reader@example.com", "cus_1", true, "premium", end, testNow).
		WillReturnRows(entitlementRow().AddRow(testUser.String(), "reader@example.com", "cus_1", true, "premium", end, testNow, testNow))

	got, err := s.UpsertEntitlement(context.Background(), models.Entitlement{
		UserID:           testUser,
		Email:            "reader@example.com",
		StripeCustomerID: &customer,
		Subscribed:       true,
		Tier:             models.TierPremium,
		PeriodEnd:        &end,
		ReconciledAt:     testNow,
	})
	require.NoError(t, err)

	assert.Equal(t, testUser, got.UserID)
	assert.Equal(t, models.TierPremium, got.Tier)
	require.NotNil(t, got.PeriodEnd)
	assert.True(t, end.Equal(*got.PeriodEnd))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntitlementUnsubscribedWritesNulls(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO subscribers`)).
		WithArgs(testUser, "reader@example.com", nil, false, nil, nil, testNow).
		WillReturnRows(entitlementRow().AddRow(testUser.String(), "reader@example.com", nil, false, nil, nil, testNow, testNow))

	got, err := s.UpsertEntitlement(context.Background(), models.Entitlement{
		UserID:       testUser,
		Email:        "reader@example.com",
		ReconciledAt: testNow,
	})
	require.NoError(t, err)
	assert.False(t, got.Subscribed)
	assert.Equal(t, models.TierNone, got.Tier)
	assert.Nil(t, got.PeriodEnd)
	assert.Nil(t, got.StripeCustomerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntitlementStaleReturnsStoredRow(t *testing.T) {
	s, mock := newMockStore(t)
	newer := testNow.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO subscribers`)).
		WillReturnRows(entitlementRow())
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscribers WHERE email = $1`)).
		WithArgs("reader@example.com").
		WillReturnRows(entitlementRow().AddRow(testUser.String(), "reader@example.com", "cus_1", true, "basic", nil, newer, newer))

	got, err := s.UpsertEntitlement(context.Background(), models.Entitlement{
		UserID:       testUser,
		Email:        "reader@example.com",
		ReconciledAt: testNow,
	})
	require.NoError(t, err)
	assert.True(t, got.Subscribed)
	assert.Equal(t, models.TierBasic, got.Tier)
	assert.True(t, newer.Equal(got.ReconciledAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntitlementQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO subscribers`)).WillReturnError(errors.New("boom"))

	_, err := s.UpsertEntitlement(context.Background(), models.Entitlement{Email: "a@example.com", ReconciledAt: testNow})
	require.Error(t, err)
}

func TestGetEntitlementNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM subscribers WHERE email = $1`)).
		WithArgs("nobody@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetEntitlementByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListLapsedEntitlements(t *testing.T) {
	s, mock := newMockStore(t)
	ended := testNow.Add(-48 * time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE subscribed AND subscription_end IS NOT NULL AND subscription_end < $1`)).
		WithArgs(testNow, 25).
		WillReturnRows(entitlementRow().AddRow(testUser.String(), "reader@example.com", "cus_1", true, "basic", ended, testNow, testNow))

	got, err := s.ListLapsedEntitlements(context.Background(), testNow, 25)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, testUser, got[0].UserID)
	assert.Equal(t, models.TierBasic, got[0].Tier)
	require.NotNil(t, got[0].PeriodEnd)
	assert.True(t, got[0].PeriodEnd.Equal(ended))
	require.NoError(t, mock.ExpectationsWereMet())
}

var bookCols = []string{"id", "title", "author", "summary", "image_url", "content_link", "download_url", "benefits", "area", "created_at"}

func TestListBooksWithFilters(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows(bookCols).
		AddRow(7, "Atomic Habits", "James Clear", "Small changes", nil, "https://youtu.be/abc", "https://files.example.com/a.pdf", nil, "Produtividade", testNow)

	mock.ExpectQuery(`FROM books b WHERE b.area = \$1 AND \(b.title ILIKE \$2 OR b.author ILIKE \$2\) ORDER BY b.title ASC LIMIT \$3 OFFSET \$4`).
		WithArgs("Produtividade", "%habits%", 10, 0).
		WillReturnRows(rows)

	books, err := s.ListBooks(context.Background(), models.BookFilter{Area: "Produtividade", Search: "habits", Limit: 10, Offset: -5})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, int64(7), books[0].ID)
	assert.True(t, books[0].HasDownload)
	require.NotNil(t, books[0].ContentLink)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListBooksClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM books b ORDER BY b.title ASC LIMIT \$1 OFFSET \$2`).
		WithArgs(maxPageSize, 0).
		WillReturnRows(sqlmock.NewRows(bookCols))

	books, err := s.ListBooks(context.Background(), models.BookFilter{Limit: 5000})
	require.NoError(t, err)
	assert.Empty(t, books)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBookNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`FROM books b WHERE b.id = \$1`).WithArgs(int64(99)).WillReturnError(sql.ErrNoRows)

	_, err := s.GetBook(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListAreas(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT area, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"area", "count"}).AddRow("Finanças", 4).AddRow("Saúde", 2))

	areas, err := s.ListAreas(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.AreaCount{{Area: "Finanças", Books: 4}, {Area: "Saúde", Books: 2}}, areas)
}

func TestAddFavoriteUnknownBook(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO book_favorites`)).
		WithArgs(testUser, int64(5)).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation})

	err := s.AddFavorite(context.Background(), testUser, 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveFavoriteMissing(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM book_favorites`)).
		WithArgs(testUser, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.RemoveFavorite(context.Background(), testUser, 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListFavoritesJoinsBooks(t *testing.T) {
	s, mock := newMockStore(t)
	cols := append(append([]string{}, bookCols...), "created_at")
	mock.ExpectQuery(regexp.QuoteMeta(`FROM book_favorites f`)).
		WithArgs(testUser).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "Mindset", "Carol Dweck", "", nil, nil, nil, nil, nil, testNow, testNow))

	favs, err := s.ListFavorites(context.Background(), testUser)
	require.NoError(t, err)
	require.Len(t, favs, 1)
	assert.Equal(t, int64(3), favs[0].BookID)
	assert.Equal(t, "Mindset", favs[0].Book.Title)
	assert.False(t, favs[0].Book.HasDownload)
}

var planCols = []string{"id", "user_id", "book_id", "order_position", "is_completed", "completed_at", "created_at"}

func TestAddToReadingPlanDuplicate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO reading_plan AS p`)).
		WithArgs(sqlmock.AnyArg(), testUser, int64(3)).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	_, err := s.AddToReadingPlan(context.Background(), testUser, 3)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestAddToReadingPlanAppends(t *testing.T) {
	s, mock := newMockStore(t)
	itemID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`COALESCE(MAX(order_position) + 1, 0)`)).
		WithArgs(sqlmock.AnyArg(), testUser, int64(3)).
		WillReturnRows(sqlmock.NewRows(planCols).AddRow(itemID.String(), testUser.String(), 3, 2, false, nil, testNow))

	item, err := s.AddToReadingPlan(context.Background(), testUser, 3)
	require.NoError(t, err)
	assert.Equal(t, itemID, item.ID)
	assert.Equal(t, 2, item.OrderPosition)
	assert.Nil(t, item.CompletedAt)
}

func TestSetReadingPlanCompleted(t *testing.T) {
	s, mock := newMockStore(t)
	itemID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE reading_plan AS p`)).
		WithArgs(itemID, testUser, true).
		WillReturnRows(sqlmock.NewRows(planCols).AddRow(itemID.String(), testUser.String(), 3, 0, true, testNow, testNow))

	item, err := s.SetReadingPlanCompleted(context.Background(), testUser, itemID, true)
	require.NoError(t, err)
	assert.True(t, item.IsCompleted)
	require.NotNil(t, item.CompletedAt)
}

func TestSetReadingPlanCompletedNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	itemID := uuid.New()
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE reading_plan AS p`)).
		WithArgs(itemID, testUser, false).
		WillReturnError(sql.ErrNoRows)

	_, err := s.SetReadingPlanCompleted(context.Background(), testUser, itemID, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReorderReadingPlanCommits(t *testing.T) {
	s, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reading_plan SET order_position = $1`)).
		WithArgs(0, a, testUser).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reading_plan SET order_position = $1`)).
		WithArgs(1, b, testUser).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ReorderReadingPlan(context.Background(), testUser, []uuid.UUID{a, b}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderReadingPlanRollsBackOnForeignItem(t *testing.T) {
	s, mock := newMockStore(t)
	a, b := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reading_plan SET order_position = $1`)).
		WithArgs(0, a, testUser).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE reading_plan SET order_position = $1`)).
		WithArgs(1, b, testUser).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.ReorderReadingPlan(context.Background(), testUser, []uuid.UUID{a, b})
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadingUpserts(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`ON CONFLICT (user_id, book_id) DO UPDATE SET`)).
		WithArgs(testUser, int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "book_id", "started_reading_at", "last_accessed_at", "is_currently_reading"}).
			AddRow(testUser.String(), 3, testNow, testNow, true))

	p, err := s.MarkReading(context.Background(), testUser, 3)
	require.NoError(t, err)
	assert.True(t, p.IsCurrentlyReading)
	assert.Equal(t, int64(3), p.BookID)
}

func TestSaveChatMessage(t *testing.T) {
	s, mock := newMockStore(t)
	bookID := "12"
	image := "uploaded"
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO ai_chat_history`)).
		WithArgs(sqlmock.AnyArg(), "user-1", "12", "Análise de imagem", "Olá!", "uploaded").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SaveChatMessage(context.Background(), models.ChatMessage{
		UserID:   "user-1",
		BookID:   &bookID,
		Message:  "Análise de imagem",
		Response: "Olá!",
		ImageURL: &image,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
