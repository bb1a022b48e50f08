package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// GateState is the position of a ReadGate.
type GateState int

const (
	GateIdle GateState = iota
	GateWaiting
	GateGranted
)

func (s GateState) String() string {
	switch s {
	case GateWaiting:
		return "waiting"
	case GateGranted:
		return "granted"
	default:
		return "idle"
	}
}

const DefaultCountdownTicks = 30

var (
	// ErrGateBusy is returned when a countdown is already running.
	ErrGateBusy = errors.New("client: countdown already running")
	// ErrGateReset is returned by a countdown interrupted by Reset.
	ErrGateReset = errors.New("client: countdown reset")
	// ErrFreeReadUsed is returned without a countdown when today's free read
	// is already used.
	ErrFreeReadUsed = errors.New("client: today's free read was already used")
)

// Ticker is the part of time.Ticker the gate needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// GateOptions configure a ReadGate. Zero values use the defaults.
type GateOptions struct {
	Ticks     int
	Interval  time.Duration
	NewTicker func(time.Duration) Ticker
	// OnTick receives the seconds left after each tick.
	OnTick func(remaining int)
	// OnGrant runs once the read is granted, for loading the content and
	// recording the day's free read.
	OnGrant func(ctx context.Context) error
}

// ReadGate runs the free-read countdown shown before a non-subscriber's read.
type ReadGate struct {
	opts GateOptions

	mu        sync.Mutex
	state     GateState
	remaining int
}

func NewReadGate(opts GateOptions) *ReadGate {
	if opts.Ticks <= 0 {
		opts.Ticks = DefaultCountdownTicks
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = func(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }
	}
	return &ReadGate{opts: opts}
}

func (g *ReadGate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *ReadGate) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// ReadAccess is what the gate needs to know about the reader.
type ReadAccess struct {
	Subscribed   bool
	FreeReadUsed bool
}

// Request moves the gate to Granted. Subscribers are granted at once; others
// wait the full countdown unless today's free read is used. Cancelling ctx or
// a failing OnGrant returns the gate to Idle.
func (g *ReadGate) Request(ctx context.Context, access ReadAccess) error {
	g.mu.Lock()
	if g.state == GateWaiting {
		g.mu.Unlock()
		return ErrGateBusy
	}
	if !access.Subscribed && access.FreeReadUsed {
		g.state, g.remaining = GateIdle, 0
		g.mu.Unlock()
		return ErrFreeReadUsed
	}
	if access.Subscribed {
		g.state, g.remaining = GateGranted, 0
		g.mu.Unlock()
		return g.grant(ctx)
	}
	g.state, g.remaining = GateWaiting, g.opts.Ticks
	g.mu.Unlock()

	ticker := g.opts.NewTicker(g.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.Reset()
			return ctx.Err()
		case <-ticker.C():
		}

		g.mu.Lock()
		if g.state != GateWaiting {
			g.mu.Unlock()
			return ErrGateReset
		}
		g.remaining--
		remaining := g.remaining
		if remaining == 0 {
			g.state = GateGranted
		}
		g.mu.Unlock()

		if g.opts.OnTick != nil {
			g.opts.OnTick(remaining)
		}
		if remaining == 0 {
			return g.grant(ctx)
		}
	}
}

func (g *ReadGate) grant(ctx context.Context) error {
	if g.opts.OnGrant == nil {
		return nil
	}
	if err := g.opts.OnGrant(ctx); err != nil {
		g.Reset()
		return err
	}
	return nil
}

// Reset returns the gate to Idle.
func (g *ReadGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state, g.remaining = GateIdle, 0
}
