package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/tiffin/internal/domain/basket"
	"github.com/xenking/tiffin/internal/domain/pricing"
	"github.com/xenking/tiffin/internal/domain/promotion"
)

// Manager keeps the live sessions of this process.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	loads    singleflight.Group

	store  basket.Store
	calc   *pricing.Calculator
	promos *promotion.Evaluator
	now    func() time.Time
}

// NewManager creates a Manager whose sessions persist to store.
func NewManager(store basket.Store, calc *pricing.Calculator, promos *promotion.Evaluator) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		calc:     calc,
		promos:   promos,
		now:      time.Now,
	}
}

// Get returns the session for id, loading its basket from the store the first
// time the id is seen. A failed load starts the session with an empty basket.
func (m *Manager) Get(ctx context.Context, id string) *Session {
	if s := m.lookup(id); s != nil {
		s.touch()
		return s
	}

	v, _, _ := m.loads.Do(id, func() (any, error) {
		if s := m.lookup(id); s != nil {
			return s, nil
		}
		snap, err := m.store.Load(ctx, id)
		if err != nil {
			zctx.From(ctx).Warn("Load basket failed, starting empty",
				zap.String("session_id", id),
				zap.Error(err),
			)
			snap = basket.Snapshot{}
		}
		s := &Session{
			id:       id,
			basket:   basket.FromSnapshot(snap),
			lastSeen: m.now(),
			store:    m.store,
			calc:     m.calc,
			promos:   m.promos,
			now:      m.now,
		}
		s.restorePromotion(ctx, snap.PromotionCode)
		m.mu.Lock()
		m.sessions[id] = s
		m.mu.Unlock()
		return s, nil
	})
	return v.(*Session)
}

// End tears a session down and deletes its durable basket.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if s != nil {
		s.mu.Lock()
		s.evicted = true
		s.mu.Unlock()
	}

	if err := m.store.Delete(ctx, id); err != nil {
		return errors.Wrap(err, "delete basket")
	}
	return nil
}

// Sweep evicts sessions idle for longer than idle. Their durable baskets and
// applied codes are kept and reloaded on the next Get. Sessions in the middle
// of a call are skipped.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.evictIdle(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(idle); n > 0 {
				zctx.From(ctx).Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}
