// Package freeread enforces the daily free read for non-subscribers: a reader
// starts a countdown for one book and may claim it once the wait elapsed, at
// most once per local calendar day.
package freeread

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/PortNumber53/readflash/backend/internal/metrics"
)

var (
	ErrDailyLimitReached = errors.New("freeread: daily free read already used")
	ErrCountdownActive   = errors.New("freeread: countdown still running")
	ErrNotStarted        = errors.New("freeread: no countdown started for this book")
)

type Status string

const (
	StatusGranted   Status = "granted"
	StatusWaiting   Status = "waiting"
	StatusExhausted Status = "exhausted"
)

// Decision is the gate's answer to a read request.
type Decision struct {
	Status      Status     `json:"status"`
	BookID      int64      `json:"book_id"`
	WaitSeconds int        `json:"wait_seconds"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
}

// Gate stores countdown starts and daily claims in Redis.
type Gate struct {
	client *goredis.Client
	wait   time.Duration
	loc    *time.Location
	now    func() time.Time
}

func NewGate(client *goredis.Client, wait time.Duration, loc *time.Location) *Gate {
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{client: client, wait: wait, loc: loc, now: time.Now}
}

func (g *Gate) usedKey(userID uuid.UUID, now time.Time) string {
	return fmt.Sprintf("freeread:used:%s:%s", userID, now.In(g.loc).Format("2006-01-02"))
}

func pendingKey(userID uuid.UUID) string {
	return "freeread:pending:" + userID.String()
}

// untilMidnight is the time left in the local day containing now.
func (g *Gate) untilMidnight(now time.Time) time.Duration {
	local := now.In(g.loc)
	next := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, g.loc)
	return next.Sub(local)
}

// UsedToday reports whether the user already claimed today's free read.
func (g *Gate) UsedToday(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := g.client.Exists(ctx, g.usedKey(userID, g.now())).Result()
	if err != nil {
		return false, fmt.Errorf("check daily free read: %w", err)
	}
	return n > 0, nil
}

// Begin answers a read request. Subscribers are granted immediately. Others
// get Exhausted when today's read is used, or Waiting with the seconds left on
// the countdown for bookID, which starts now unless it is already running.
func (g *Gate) Begin(ctx context.Context, userID uuid.UUID, bookID int64, subscribed bool) (Decision, error) {
	if subscribed {
		metrics.FreeReadDecisionsTotal.WithLabelValues(string(StatusGranted)).Inc()
		return Decision{Status: StatusGranted, BookID: bookID}, nil
	}

	now := g.now()
	used, err := g.UsedToday(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	if used {
		metrics.FreeReadDecisionsTotal.WithLabelValues(string(StatusExhausted)).Inc()
		return Decision{Status: StatusExhausted, BookID: bookID}, nil
	}

	startedAt, ok, err := g.pending(ctx, userID, bookID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		startedAt = now
		value := strconv.FormatInt(bookID, 10) + ":" + strconv.FormatInt(now.UnixNano(), 10)
		// A start for another book is replaced.
		if err := g.client.Set(ctx, pendingKey(userID), value, g.wait+time.Hour).Err(); err != nil {
			return Decision{}, fmt.Errorf("start free read countdown: %w", err)
		}
	}

	metrics.FreeReadDecisionsTotal.WithLabelValues(string(StatusWaiting)).Inc()
	return waiting(bookID, startedAt.Add(g.wait), now), nil
}

func waiting(bookID int64, readyAt, now time.Time) Decision {
	at := readyAt.UTC()
	return Decision{
		Status:      StatusWaiting,
		BookID:      bookID,
		WaitSeconds: secondsLeft(readyAt.Sub(now)),
		ReadyAt:     &at,
	}
}

// Claim completes the countdown for bookID and consumes today's free read.
func (g *Gate) Claim(ctx context.Context, userID uuid.UUID, bookID int64, subscribed bool) (Decision, error) {
	if subscribed {
		return Decision{Status: StatusGranted, BookID: bookID}, nil
	}

	now := g.now()
	startedAt, ok, err := g.pending(ctx, userID, bookID)
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		return Decision{}, ErrNotStarted
	}
	readyAt := startedAt.Add(g.wait)
	if now.Before(readyAt) {
		return waiting(bookID, readyAt, now), ErrCountdownActive
	}

	claimed, err := g.client.SetNX(ctx, g.usedKey(userID, now), strconv.FormatInt(bookID, 10), g.untilMidnight(now)).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("record daily free read: %w", err)
	}
	if !claimed {
		metrics.FreeReadDecisionsTotal.WithLabelValues(string(StatusExhausted)).Inc()
		return Decision{Status: StatusExhausted, BookID: bookID}, ErrDailyLimitReached
	}
	if err := g.client.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return Decision{}, fmt.Errorf("clear free read countdown: %w", err)
	}

	metrics.FreeReadDecisionsTotal.WithLabelValues("claimed").Inc()
	return Decision{Status: StatusGranted, BookID: bookID}, nil
}

// pending returns the countdown start for bookID when one is running.
func (g *Gate) pending(ctx context.Context, userID uuid.UUID, bookID int64) (time.Time, bool, error) {
	raw, err := g.client.Get(ctx, pendingKey(userID)).Result()
	if errors.Is(err, goredis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("read free read countdown: %w", err)
	}

	book, started, found := strings.Cut(raw, ":")
	if !found || book != strconv.FormatInt(bookID, 10) {
		return time.Time{}, false, nil
	}
	nanos, err := strconv.ParseInt(started, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(0, nanos), true, nil
}

func secondsLeft(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
