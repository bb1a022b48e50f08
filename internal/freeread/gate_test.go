package freeread

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reader = uuid.MustParse("7d1c3a52-55a3-4c59-bb1e-3f1ad7c0b2e4")

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGate(t *testing.T, start time.Time) (*Gate, *clock, *miniredis.Miniredis) {
	t.Helper()
	mr, client := newMiniRedisClient(t)
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	c := &clock{t: start}
	g := NewGate(client, 30*time.Second, loc)
	g.now = c.now
	return g, c, mr
}

func TestSubscriberIsGrantedWithoutCountdown(t *testing.T) {
	g, _, mr := newTestGate(t, time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC))

	d, err := g.Begin(context.Background(), reader, 42, true)
	require.NoError(t, err)
	assert.Equal(t, StatusGranted, d.Status)
	assert.Zero(t, d.WaitSeconds)
	assert.Empty(t, mr.Keys())
}

func TestFreeReadRequiresFullCountdown(t *testing.T) {
	g, c, _ := newTestGate(t, time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	d, err := g.Begin(ctx, reader, 42, false)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, d.Status)
	assert.Equal(t, 30, d.WaitSeconds)

	c.advance(29 * time.Second)
	d, err = g.Claim(ctx, reader, 42, false)
	require.ErrorIs(t, err, ErrCountdownActive)
	assert.Equal(t, 1, d.WaitSeconds)

	// Asking again does not restart the countdown.
	d, err = g.Begin(ctx, reader, 42, false)
	require.NoError(t, err)
	assert.Equal(t, 1, d.WaitSeconds)

	c.advance(time.Second)
	d, err = g.Claim(ctx, reader, 42, false)
	require.NoError(t, err)
	assert.Equal(t, StatusGranted, d.Status)

	used, err := g.UsedToday(ctx, reader)
	require.NoError(t, err)
	assert.True(t, used)
}

func TestSecondFreeReadSameDayIsExhausted(t *testing.T) {
	g, c, _ := newTestGate(t, time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := g.Begin(ctx, reader, 1, false)
	require.NoError(t, err)
	c.advance(30 * time.Second)
	_, err = g.Claim(ctx, reader, 1, false)
	require.NoError(t, err)

	d, err := g.Begin(ctx, reader, 2, false)
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, d.Status)
}

func TestFreeReadResetsAtLocalMidnight(t *testing.T) {
	// 23:59:00 in São Paulo (UTC-3).
	start := time.Date(2025, 9, 2, 2, 59, 0, 0, time.UTC)
	g, c, mr := newTestGate(t, start)
	ctx := context.Background()

	_, err := g.Begin(ctx, reader, 1, false)
	require.NoError(t, err)
	c.advance(30 * time.Second)
	_, err = g.Claim(ctx, reader, 1, false)
	require.NoError(t, err)

	ttl := mr.TTL("freeread:used:" + reader.String() + ":2025-09-01")
	assert.Equal(t, 30*time.Second, ttl)

	c.advance(time.Minute)
	d, err := g.Begin(ctx, reader, 2, false)
	require.NoError(t, err)
	assert.Equal(t, StatusWaiting, d.Status)
}

func TestClaimWithoutBegin(t *testing.T) {
	g, _, _ := newTestGate(t, time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC))

	_, err := g.Claim(context.Background(), reader, 42, false)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestSwitchingBooksRestartsCountdown(t *testing.T) {
	g, c, _ := newTestGate(t, time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := g.Begin(ctx, reader, 1, false)
	require.NoError(t, err)
	c.advance(20 * time.Second)

	d, err := g.Begin(ctx, reader, 2, false)
	require.NoError(t, err)
	assert.Equal(t, 30, d.WaitSeconds)

	c.advance(15 * time.Second)
	_, err = g.Claim(ctx, reader, 1, false)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestPendingCountdownExpires(t *testing.T) {
	g, _, mr := newTestGate(t, time.Date(2025, 9, 1, 15, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := g.Begin(ctx, reader, 1, false)
	require.NoError(t, err)
	mr.FastForward(2 * time.Hour)

	_, err = g.Claim(ctx, reader, 1, false)
	require.ErrorIs(t, err, ErrNotStarted)
}

func newMiniRedisClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}

	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})

	return mr, client
}
