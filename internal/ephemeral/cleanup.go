package ephemeral

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// timerSet holds the per-session expiry timers. Timers are an advisory
// fast path; the sweep and the store TTLs catch anything a lost timer
// (process restart, missed fire) leaves behind.
type timerSet struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	fire   func(id string)
}

func newTimerSet(fire func(id string)) *timerSet {
	return &timerSet{
		timers: make(map[string]*time.Timer),
		fire:   fire,
	}
}

// schedule arms (or re-arms) the expiry timer for a session.
func (t *timerSet) schedule(id string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.timers[id]; ok {
		existing.Stop()
	}
	t.timers[id] = time.AfterFunc(d, func() {
		t.drop(id)
		t.fire(id)
	})
}

func (t *timerSet) cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *timerSet) drop(id string) {
	t.mu.Lock()
	delete(t.timers, id)
	t.mu.Unlock()
}

func (t *timerSet) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// Run drives the periodic sweep until ctx is cancelled, then stops all
// pending timers. Intended to run as a background goroutine for the life
// of the process.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer m.timers.stopAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Sweep(ctx); err != nil {
				m.log().Error("sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep walks the session index and cascades deletion for every session
// that is expired or whose record has already fallen out of the store,
// clearing any artifacts the per-session timers did not reach.
func (m *Manager) Sweep(ctx context.Context) error {
	ctx, span := m.tracer.Start(ctx, "ephemeral.Sweep")
	defer span.End()

	ids, err := m.sessions.ListIDs(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}

	swept := 0
	now := m.now()
	for _, id := range ids {
		session, err := m.sessions.Get(ctx, id)
		if err != nil {
			m.log().Warn("sweep load failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		// nil means the record's TTL fired but orphaned artifacts or the
		// index entry may remain.
		if session != nil && !session.Expired(now) {
			continue
		}
		deleted, err := m.destroy(ctx, id)
		if err != nil {
			m.log().Warn("sweep cleanup failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		swept++
		m.log().Debug("sweep removed session",
			zap.String("session_id", id),
			zap.Int("deleted_keys", deleted))
	}

	if swept > 0 {
		m.log().Info("sweep completed", zap.Int("sessions_removed", swept))
	}
	return nil
}
