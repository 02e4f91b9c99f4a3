package auth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSweepInterval is how often the registry purges entries that can no
// longer be presented as valid tokens.
const DefaultSweepInterval = time.Hour

// AuditFunc receives audit events emitted by the registry (invalidations and
// sweep removals).
type AuditFunc func(event string, fields map[string]any)

// Registry tracks explicitly invalidated tokens in process memory. Membership
// checks sit on the hot path of every authenticated request, so the set is
// guarded by a read-mostly lock. The registry owns its sweeper goroutine;
// construct it once at process start and stop it on shutdown.
type Registry struct {
	codec    *Codec
	interval time.Duration
	logger   *slog.Logger
	audit    AuditFunc

	observe func(removed int, elapsed time.Duration)

	mu     sync.RWMutex
	tokens map[string]struct{}

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithSweepInterval overrides the periodic sweep interval.
func WithSweepInterval(interval time.Duration) RegistryOption {
	return func(r *Registry) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithRegistryLogger sets the logger used by the sweeper.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithAuditHook installs a hook invoked on invalidation and at each sweep
// removal.
func WithAuditHook(fn AuditFunc) RegistryOption {
	return func(r *Registry) {
		r.audit = fn
	}
}

// WithSweepObserver installs a callback invoked after every periodic sweep,
// typically to feed metrics.
func WithSweepObserver(fn func(removed int, elapsed time.Duration)) RegistryOption {
	return func(r *Registry) {
		r.observe = fn
	}
}

// NewRegistry constructs a Registry purging entries with the given codec.
func NewRegistry(codec *Codec, opts ...RegistryOption) *Registry {
	r := &Registry{
		codec:    codec,
		interval: DefaultSweepInterval,
		logger:   slog.Default(),
		tokens:   make(map[string]struct{}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Invalidate records the token so it is rejected from now on. It returns
// false only for an empty token. Recording is best-effort by design: a
// malformed or already-expired token is still accepted, and a token that is
// already present reports true without re-verification. Each successful call
// triggers an immediate cleanup sweep.
func (r *Registry) Invalidate(token string) bool {
	if token == "" {
		return false
	}

	r.mu.Lock()
	_, present := r.tokens[token]
	if !present {
		r.tokens[token] = struct{}{}
	}
	r.mu.Unlock()

	if present {
		return true
	}

	// Subject resolution is informational only; decoding failure never
	// blocks invalidation.
	subject := ""
	if claims, err := r.codec.Verify(token); err == nil {
		subject = claims.Subject
	}
	r.emit("auth.token.invalidated", map[string]any{"subject": subject})

	// The entry just recorded is spared so the invalidation is observable
	// even for tokens that are already dead; the periodic sweep reclaims it.
	r.cleanupExcept(token)
	return true
}

// IsInvalidated reports membership without mutating the set.
func (r *Registry) IsInvalidated(token string) bool {
	if token == "" {
		return false
	}
	r.mu.RLock()
	_, ok := r.tokens[token]
	r.mu.RUnlock()
	return ok
}

// Size returns the current number of tracked tokens.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}

// Cleanup purges entries that can never again be presented as valid: junk
// entries (wrong segment count or charset) are dropped without verification,
// and well-formed entries are dropped once Verify fails, which covers natural
// expiry. Entries still within their lifetime stay blocked. Returns the
// number of removed entries.
func (r *Registry) Cleanup() int {
	return r.cleanupExcept("")
}

func (r *Registry) cleanupExcept(spared string) int {
	r.mu.RLock()
	snapshot := make([]string, 0, len(r.tokens))
	for token := range r.tokens {
		if token == spared {
			continue
		}
		snapshot = append(snapshot, token)
	}
	r.mu.RUnlock()

	// Verification happens outside the lock; membership checks and inserts
	// proceed concurrently.
	var dead []string
	for _, token := range snapshot {
		if !WellFormed(token) {
			dead = append(dead, token)
			continue
		}
		if _, err := r.codec.Verify(token); err != nil {
			dead = append(dead, token)
		}
	}
	if len(dead) == 0 {
		return 0
	}

	removed := 0
	r.mu.Lock()
	for _, token := range dead {
		if _, ok := r.tokens[token]; ok {
			delete(r.tokens, token)
			removed++
		}
	}
	r.mu.Unlock()

	r.emit("auth.revocation.swept", map[string]any{"removed": removed})
	return removed
}

// Start launches the periodic sweeper. It runs until Stop is called or the
// context is cancelled. Calling Start more than once is a no-op.
func (r *Registry) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		r.started.Store(true)
		go r.sweep(ctx)
	})
}

func (r *Registry) sweep(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			start := time.Now()
			removed := r.Cleanup()
			elapsed := time.Since(start)
			if r.observe != nil {
				r.observe(removed, elapsed)
			}
			r.logger.Debug("revocation sweep complete",
				slog.Int("removed", removed),
				slog.Duration("elapsed", elapsed),
				slog.Int("remaining", r.Size()),
			)
		}
	}
}

// Stop terminates the sweeper goroutine and waits for it to exit. Safe to
// call more than once, and returns immediately when Start was never called.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if !r.started.Load() {
		return
	}
	select {
	case <-r.done:
	case <-time.After(time.Second):
	}
}

func (r *Registry) emit(event string, fields map[string]any) {
	if r.audit != nil {
		r.audit(event, fields)
	}
}
