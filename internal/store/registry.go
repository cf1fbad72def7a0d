package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ecobazaar/storefront/internal/storage"
)

// DefaultSession is used for callers that do not identify a session.
const DefaultSession = "default"

// capacityGrace protects recently used sessions from capacity eviction. It
// outlasts any request holding a store returned by Get.
const capacityGrace = time.Minute

// Limits bounds the sessions a Registry keeps open. Zero values disable the
// corresponding bound.
type Limits struct {
	// IdleTimeout drops sessions not used for this long.
	IdleTimeout time.Duration
	// MaxSessions is a soft cap. Opening a session beyond it drops the least
	// recently used one, unless every session was used within the last minute.
	MaxSessions int
}

// Registry keeps one Store per session. Each store persists under its own
// "session:<id>:" namespace of the shared KV.
//
// A session is only dropped while it has no subscribers and nothing left to
// write, so dropping never loses state: the next Get reopens it from the KV.
type Registry struct {
	kv     storage.KV
	logger *slog.Logger
	opts   []Option
	limits Limits
	now    func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
	closed bool

	stop chan struct{}
	done chan struct{}
}

type entry struct {
	once     sync.Once
	store    *Store // set under Registry.mu
	lastUsed time.Time
}

// NewRegistry creates a registry whose stores share kv and opts. With an
// IdleTimeout it sweeps idle sessions in the background until Close.
func NewRegistry(kv storage.KV, logger *slog.Logger, limits Limits, opts ...Option) *Registry {
	r := &Registry{
		kv:     kv,
		logger: logger,
		opts:   opts,
		limits: limits,
		now:    time.Now,
		stores: make(map[string]*entry),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if limits.IdleTimeout > 0 {
		go r.janitor(limits.IdleTimeout / 2)
	} else {
		close(r.done)
	}
	return r
}

// SessionPrefix returns the key namespace of a session.
func SessionPrefix(session string) string {
	return "session:" + session + ":"
}

// Get returns the store for session, opening it on first use. An empty
// session means DefaultSession. After Close, Get returns a fresh in-memory
// store that is not persisted.
func (r *Registry) Get(ctx context.Context, session string) *Store {
	if session == "" {
		session = DefaultSession
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.detached(ctx, session)
	}
	e, ok := r.stores[session]
	if !ok {
		if r.limits.MaxSessions > 0 && len(r.stores) >= r.limits.MaxSessions {
			r.evictOldestLocked()
		}
		e = &entry{}
		r.stores[session] = e
		sessionsOpen.Set(float64(len(r.stores)))
	}
	e.lastUsed = r.now()
	r.mu.Unlock()

	e.once.Do(func() {
		var kv storage.KV
		if r.kv != nil {
			kv = storage.Namespace(r.kv, SessionPrefix(session))
		}
		s := r.open(ctx, kv, session)
		r.mu.Lock()
		e.store = s
		r.mu.Unlock()
	})

	r.mu.Lock()
	s := e.store
	r.mu.Unlock()
	if s == nil {
		// Close won the race for this entry.
		return r.detached(ctx, session)
	}
	return s
}

func (r *Registry) detached(ctx context.Context, session string) *Store {
	s := r.open(ctx, nil, session)
	_ = s.Close(ctx)
	return s
}

func (r *Registry) open(ctx context.Context, kv storage.KV, session string) *Store {
	opts := append([]Option{WithSession(session)}, r.opts...)
	return Open(context.WithoutCancel(ctx), kv, r.logger, opts...)
}

// droppableLocked reports whether e has finished opening and its store can be
// forgotten without losing anything.
func droppableLocked(e *entry) bool {
	return e.store != nil && e.store.quiescent()
}

func (r *Registry) evictOldestLocked() {
	var (
		oldestID string
		oldest   *entry
	)
	cutoff := r.now().Add(-capacityGrace)
	for id, e := range r.stores {
		if !e.lastUsed.Before(cutoff) || !droppableLocked(e) {
			continue
		}
		if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
			oldestID, oldest = id, e
		}
	}
	if oldest == nil {
		r.logger.Warn("session limit reached and no session is idle",
			slog.Int("sessions", len(r.stores)),
			slog.Int("max_sessions", r.limits.MaxSessions),
		)
		return
	}
	delete(r.stores, oldestID)
	sessionsEvicted.WithLabelValues("capacity").Inc()
	r.logger.Debug("session dropped at capacity", slog.String("session_id", oldestID))
}

// Sweep drops sessions idle for longer than the IdleTimeout and returns how
// many were dropped.
func (r *Registry) Sweep() int {
	if r.limits.IdleTimeout <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.limits.IdleTimeout)
	dropped := 0
	for id, e := range r.stores {
		if e.lastUsed.Before(cutoff) && droppableLocked(e) {
			delete(r.stores, id)
			dropped++
		}
	}
	if dropped > 0 {
		sessionsEvicted.WithLabelValues("idle").Add(float64(dropped))
		sessionsOpen.Set(float64(len(r.stores)))
		r.logger.Debug("idle sessions dropped",
			slog.Int("dropped", dropped),
			slog.Int("sessions", len(r.stores)),
		)
	}
	return dropped
}

func (r *Registry) janitor(interval time.Duration) {
	defer close(r.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.stop:
			return
		}
	}
}

// Sessions returns the ids of the opened sessions, sorted.
func (r *Registry) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close stops the sweeper and flushes and closes every store.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := make(map[string]*entry, len(r.stores))
	for id, e := range r.stores {
		entries[id] = e
	}
	r.mu.Unlock()

	close(r.stop)
	<-r.done

	var errs []error
	for id, e := range entries {
		// Wait for an in-flight open to finish.
		e.once.Do(func() {})
		r.mu.Lock()
		s := e.store
		r.mu.Unlock()
		if s == nil {
			continue
		}
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close session %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
