package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/PortNumber53/readflash/backend/internal/models"
)

const (
	defaultPageSize  = 50
	maxPageSize      = 200
	subscribersTable = "subscribers"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when an insert collides with an existing row.
	ErrDuplicate = errors.New("store: already exists")
)

// Store provides database-backed accessors for application data.
type Store struct {
	db *sql.DB
}

// New creates a Store using the provided sql.DB connection.
func New(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Store{db: db}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const entitlementColumns = `user_id, email, stripe_customer_id, subscribed, subscription_tier, subscription_end, reconciled_at, updated_at`

// UpsertEntitlement writes the entitlement keyed by email. The row is only
// replaced when the stored reconciled_at is not newer than e.ReconciledAt; in
// either case the row as stored afterwards is returned.
func (s *Store) UpsertEntitlement(ctx context.Context, e models.Entitlement) (models.Entitlement, error) {
	var tier sql.NullString
	if e.Tier != models.TierNone {
		tier = sql.NullString{String: string(e.Tier), Valid: true}
	}

	query := fmt.Sprintf(`
INSERT INTO %[1]s (user_id, email, stripe_customer_id, subscribed, subscription_tier, subscription_end, reconciled_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (email) DO UPDATE SET
  user_id = EXCLUDED.user_id,
  stripe_customer_id = EXCLUDED.stripe_customer_id,
  subscribed = EXCLUDED.subscribed,
  subscription_tier = EXCLUDED.subscription_tier,
  subscription_end = EXCLUDED.subscription_end,
  reconciled_at = EXCLUDED.reconciled_at,
  updated_at = NOW()
WHERE %[1]s.reconciled_at <= EXCLUDED.reconciled_at
RETURNING %[2]s
`, subscribersTable, entitlementColumns)

	row := s.db.QueryRowContext(ctx, query,
		e.UserID,
		e.Email,
		nullString(e.StripeCustomerID),
		e.Subscribed,
		tier,
		nullTime(e.PeriodEnd),
		e.ReconciledAt,
	)

	stored, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		// The guard rejected the write because a newer reconciliation landed first.
		return s.GetEntitlementByEmail(ctx, e.Email)
	}
	if err != nil {
		return models.Entitlement{}, fmt.Errorf("store: upsert entitlement: %w", err)
	}
	return stored, nil
}

// GetEntitlementByEmail returns the stored entitlement for email.
func (s *Store) GetEntitlementByEmail(ctx context.Context, email string) (models.Entitlement, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1`, entitlementColumns, subscribersTable)

	e, err := scanEntitlement(s.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entitlement{}, ErrNotFound
	}
	if err != nil {
		return models.Entitlement{}, fmt.Errorf("store: get entitlement: %w", err)
	}
	return e, nil
}

// ListLapsedEntitlements returns subscribed rows whose period ended before
// cutoff, oldest first. These are candidates for a fresh reconciliation.
func (s *Store) ListLapsedEntitlements(ctx context.Context, cutoff time.Time, limit int) ([]models.Entitlement, error) {
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE subscribed AND subscription_end IS NOT NULL AND subscription_end < $1
ORDER BY subscription_end ASC
LIMIT $2`, entitlementColumns, subscribersTable)

	rows, err := s.db.QueryContext(ctx, query, cutoff, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("store: list lapsed entitlements: %w", err)
	}
	defer rows.Close()

	var out []models.Entitlement
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan entitlement: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate entitlements: %w", err)
	}
	return out, nil
}

func scanEntitlement(row rowScanner) (models.Entitlement, error) {
	var (
		e          models.Entitlement
		customerID sql.NullString
		tier       sql.NullString
		periodEnd  sql.NullTime
	)
	if err := row.Scan(
		&e.UserID,
		&e.Email,
		&customerID,
		&e.Subscribed,
		&tier,
		&periodEnd,
		&e.ReconciledAt,
		&e.UpdatedAt,
	); err != nil {
		return models.Entitlement{}, err
	}
	e.StripeCustomerID = nullStringPtr(customerID)
	if tier.Valid {
		e.Tier = models.Tier(tier.String)
	}
	e.PeriodEnd = nullTimePtr(periodEnd)
	return e, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func nullStringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	value := ns.String
	return &value
}

func nullTimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	value := nt.Time.UTC()
	return &value
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
