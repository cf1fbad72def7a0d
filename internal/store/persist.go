package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ecobazaar/storefront/internal/storage"
)

// writeTimeout bounds a single background write.
const writeTimeout = 5 * time.Second

// ErrClosed is returned by Flush after the store has been closed.
var ErrClosed = errors.New("store closed")

// persister mirrors encoded collections to a KV off the caller's path. Only
// the latest value of each key is kept while a write is pending. Keys are
// written in the order of their latest enqueue, so a key queued again moves
// behind everything queued before it.
//
// A writer goroutine exists only while writes are pending, so an idle store
// holds no goroutine and can be dropped without closing it.
type persister struct {
	kv     storage.KV
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string][]byte
	queue   []string
	// unsaved holds keys whose last write failed.
	unsaved map[string]bool
	running bool
	closed  bool

	// writeMu serializes drains between the writer goroutine and Flush.
	writeMu sync.Mutex
	writers sync.WaitGroup
}

func newPersister(kv storage.KV, logger *slog.Logger) *persister {
	return &persister{
		kv:      kv,
		logger:  logger,
		pending: make(map[string][]byte),
		unsaved: make(map[string]bool),
	}
}

// enqueue schedules value to be written at key. It never blocks on I/O.
func (p *persister) enqueue(key string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.logger.Debug("store closed, dropping write", slog.String("key", key))
		return
	}
	if _, queued := p.pending[key]; queued {
		p.queue = removeKey(p.queue, key)
	}
	p.queue = append(p.queue, key)
	p.pending[key] = value

	if !p.running {
		p.running = true
		p.writers.Add(1)
		go p.run()
	}
}

func removeKey(queue []string, key string) []string {
	for i, k := range queue {
		if k == key {
			return append(queue[:i], queue[i+1:]...)
		}
	}
	return queue
}

// run drains until nothing is pending, then exits.
func (p *persister) run() {
	defer p.writers.Done()
	for {
		_ = p.drain(context.Background())

		p.mu.Lock()
		if len(p.queue) == 0 {
			p.running = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
	}
}

// idle reports whether every queued value has reached the KV.
func (p *persister) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.running && len(p.queue) == 0 && len(p.unsaved) == 0
}

// drain writes everything pending and returns the joined write errors.
func (p *persister) drain(ctx context.Context) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	var errs []error
	for {
		key, value, ok := p.next()
		if !ok {
			return errors.Join(errs...)
		}
		if err := p.write(ctx, key, value); err != nil {
			errs = append(errs, err)
		}
	}
}

func (p *persister) next() (string, []byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.queue) == 0 {
		return "", nil, false
	}
	key := p.queue[0]
	p.queue = p.queue[1:]
	value := p.pending[key]
	delete(p.pending, key)
	return key, value, true
}

func (p *persister) write(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	err := p.kv.Set(ctx, key, value)

	p.mu.Lock()
	if err != nil {
		p.unsaved[key] = true
	} else {
		delete(p.unsaved, key)
	}
	p.mu.Unlock()

	if err != nil {
		persistFailures.WithLabelValues(key).Inc()
		p.logger.Warn("failed to persist collection, keeping it in memory",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("persist %s: %w", key, err)
	}
	return nil
}

// flush synchronously writes everything pending.
func (p *persister) flush(ctx context.Context) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return p.drain(ctx)
}

// close stops accepting writes, waits for the writer goroutine and writes
// whatever is left. It is safe to call more than once.
func (p *persister) close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.writers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.drain(ctx)
}
