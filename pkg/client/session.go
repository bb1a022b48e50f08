package client

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSignedOut is returned by Refresh after SignOut until Start is called again.
var ErrSignedOut = errors.New("client: session is signed out")

// Refresher re-derives the caller's entitlement.
type Refresher interface {
	Refresh(ctx context.Context) (Entitlement, error)
}

// Session holds the signed-in user's entitlement for the UI to gate actions
// on. It is created per sign-in and passed to whoever needs it.
type Session struct {
	refresher Refresher

	mu          sync.RWMutex
	active      bool
	entitlement Entitlement
	refreshedAt time.Time
	now         func() time.Time
}

func NewSession(refresher Refresher) *Session {
	return &Session{refresher: refresher, now: time.Now}
}

// Start activates the session and reconciles once.
func (s *Session) Start(ctx context.Context) (Entitlement, error) {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
	return s.Refresh(ctx)
}

// Refresh reconciles and caches the result. On failure the cached value is
// kept.
func (s *Session) Refresh(ctx context.Context) (Entitlement, error) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	if !active {
		return Entitlement{}, ErrSignedOut
	}

	ent, err := s.refresher.Refresh(ctx)
	if err != nil {
		return s.Entitlement(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A sign-out during the call wins.
	if !s.active {
		return Entitlement{}, ErrSignedOut
	}
	s.entitlement = ent
	s.refreshedAt = s.now()
	return ent, nil
}

// Entitlement returns the cached value.
func (s *Session) Entitlement() Entitlement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entitlement
}

// RefreshedAt is when the cached value was last written; zero before the
// first successful refresh.
func (s *Session) RefreshedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshedAt
}

// SignOut drops the cached entitlement.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.entitlement = Entitlement{}
	s.refreshedAt = time.Time{}
}

// CanReadImmediately reports whether reads skip the free-read countdown.
func (s *Session) CanReadImmediately() bool {
	return s.Entitlement().Subscribed
}

// ReadAccess describes the reader for a ReadGate. freeReadUsed comes from the
// server's answer to the last read request.
func (s *Session) ReadAccess(freeReadUsed bool) ReadAccess {
	return ReadAccess{Subscribed: s.CanReadImmediately(), FreeReadUsed: freeReadUsed}
}

// CanDownload reports whether downloads are unlocked.
func (s *Session) CanDownload() bool {
	e := s.Entitlement()
	return e.Subscribed && e.Tier == TierPremium
}
