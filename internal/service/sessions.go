package service

import (
	"context"
	"sync"
	"time"

	"tableorder/internal/cart"
	"tableorder/internal/util"

	"go.uber.org/zap"
)

type session struct {
	cart     *cart.Store
	lastSeen time.Time
}

// CartSessions keeps one private cart per client session. Sessions idle
// for longer than the configured TTL are evicted by Run.
type CartSessions struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
	logger   *zap.Logger
}

func NewCartSessions() *CartSessions {
	return &CartSessions{
		sessions: make(map[string]*session),
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Get returns the cart for sessionID, creating an empty one on first use.
func (cs *CartSessions) Get(ctx context.Context, sessionID string) (*cart.Store, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if s, ok := cs.sessions[sessionID]; ok {
		s.lastSeen = cs.now()
		return s.cart, nil
	}
	c, err := cart.NewSessionStore(ctx)
	if err != nil {
		return nil, err
	}
	cs.sessions[sessionID] = &session{cart: c, lastSeen: cs.now()}
	util.CartSessionsActive.Set(float64(len(cs.sessions)))
	return c, nil
}

// Len returns the number of open sessions.
func (cs *CartSessions) Len() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.sessions)
}

// Drop discards the cart of sessionID.
func (cs *CartSessions) Drop(sessionID string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.drop(sessionID)
}

// EvictIdle drops every session not used within ttl and returns how many
// were dropped.
func (cs *CartSessions) EvictIdle(ttl time.Duration) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cutoff := cs.now().Add(-ttl)
	evicted := 0
	for id, s := range cs.sessions {
		if s.lastSeen.Before(cutoff) {
			cs.drop(id)
			evicted++
		}
	}
	return evicted
}

// Run evicts idle sessions every interval until ctx is done.
func (cs *CartSessions) Run(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := cs.EvictIdle(ttl); n > 0 {
				cs.logger.Info("Evicted idle cart sessions",
					zap.Int("evicted", n),
					zap.Int("remaining", cs.Len()))
			}
		}
	}
}

func (cs *CartSessions) Close() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for id := range cs.sessions {
		cs.drop(id)
	}
}

// drop must be called with mu held.
func (cs *CartSessions) drop(sessionID string) {
	if s, ok := cs.sessions[sessionID]; ok {
		s.cart.Close()
		delete(cs.sessions, sessionID)
		util.CartSessionsActive.Set(float64(len(cs.sessions)))
	}
}
