package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultDatabase is the logical name used when callers pass an empty one.
	DefaultDatabase = "local"

	// DefaultPoolSize is the pool size used when the config leaves it unset.
	DefaultPoolSize = 10

	// DefaultPoolRecycle is the maximum age of a pooled connection before it
	// is dialed fresh.
	DefaultPoolRecycle = time.Hour
)

// Options carries the pool parameters for one engine. Zero fields fall back
// to the registry defaults.
type Options struct {
	PoolSize    int
	PoolRecycle time.Duration
}

// Registry caches one engine and one session factory per logical database
// name. It replaces process-global caches: construct one in main and inject
// it into everything that touches the database.
type Registry struct {
	mu       sync.Mutex
	dsn      string
	defaults Options
	pid      func() int
	engines  map[string]*Engine
	sessions map[string]*SessionFactory
}

// NewRegistry creates a registry for the given connection string. The
// connection string and defaults are treated as opaque after the first
// engine construction for a name.
func NewRegistry(dsn string, defaults Options) *Registry {
	if defaults.PoolSize <= 0 {
		defaults.PoolSize = DefaultPoolSize
	}
	if defaults.PoolRecycle <= 0 {
		defaults.PoolRecycle = DefaultPoolRecycle
	}
	return &Registry{
		dsn:      dsn,
		defaults: defaults,
		pid:      os.Getpid,
		engines:  make(map[string]*Engine),
		sessions: make(map[string]*SessionFactory),
	}
}

// Engine returns the pooled connection factory for name, building and
// caching it on first use. Options are honored only when the engine is
// first constructed; later calls return the cached engine untouched. That
// is a known surprise carried over deliberately: callers passing ad-hoc
// pool settings after startup get the original pool.
func (r *Registry) Engine(name string, opts ...Options) *Engine {
	if name == "" {
		name = DefaultDatabase
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[name]; ok {
		return e
	}

	o := r.defaults
	if len(opts) > 0 {
		if opts[0].PoolSize > 0 {
			o.PoolSize = opts[0].PoolSize
		}
		if opts[0].PoolRecycle > 0 {
			o.PoolRecycle = opts[0].PoolRecycle
		}
	}

	e := newEngine(name, r.dsn, o.PoolSize, o.PoolRecycle, r.pid)
	r.engines[name] = e
	return e
}

// SessionFactory returns the cached session factory for name if it is still
// alive, rebuilding and re-caching it otherwise. Liveness is probed by
// acquiring and releasing an underlying connection; any failure counts as
// dead.
func (r *Registry) SessionFactory(name string) *SessionFactory {
	if name == "" {
		name = DefaultDatabase
	}

	r.mu.Lock()
	if f, ok := r.sessions[name]; ok {
		r.mu.Unlock()
		if f.validate(context.Background()) {
			return f
		}
		log.Warn().Str("database", name).Msg("Session factory failed liveness probe, rebuilding")
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	f := &SessionFactory{engine: r.engineLocked(name)}
	r.sessions[name] = f
	return f
}

// engineLocked is Engine without re-locking, for callers already holding mu.
func (r *Registry) engineLocked(name string) *Engine {
	if e, ok := r.engines[name]; ok {
		return e
	}
	e := newEngine(name, r.dsn, r.defaults.PoolSize, r.defaults.PoolRecycle, r.pid)
	r.engines[name] = e
	return e
}

// Close shuts down every engine pool owned by the registry.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for name, e := range r.engines {
		if err := e.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close engine %q: %w", name, err)
		}
		delete(r.engines, name)
		delete(r.sessions, name)
	}
	return firstErr
}
