package tenantpool

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// Open 创建一个 PostgreSQL 连接池
func Open(dsn string, maxConns, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	return db, nil
}

// Registry caches one connection pool per (tenant, descriptor) target.
// It is process-wide shared state owned by the composition root. Exclusivity
// is per key: concurrent callers for the same key never build two pools, and
// a slow dial for one tenant does not block callers for other tenants.
type Registry struct {
	mu       sync.Mutex
	pools    map[string]*poolEntry
	maxConns int
	maxIdle  int
	logger   *zap.Logger

	// openFn is swapped in tests to avoid dialing a real server.
	openFn func(dsn string, maxConns, maxIdle int) (*sql.DB, error)
	pingFn func(ctx context.Context, db *sql.DB) error
}

// poolEntry is the per-key construction slot. The first caller builds the
// pool and closes ready; everyone else waits on ready and shares the result.
type poolEntry struct {
	ready chan struct{}
	db    *sql.DB
	err   error
}

func NewRegistry(maxConns, maxIdle int, logger *zap.Logger) *Registry {
	return &Registry{
		pools:    map[string]*poolEntry{},
		maxConns: maxConns,
		maxIdle:  maxIdle,
		logger:   logger,
		openFn:   Open,
		pingFn: func(ctx context.Context, db *sql.DB) error {
			return db.PingContext(ctx)
		},
	}
}

func poolKey(tenantID, descriptor string) string {
	return tenantID + "|" + descriptor
}

// Acquire returns the cached pool for (tenantID, descriptor), constructing it
// on first use. A target that fails to open or ping is surfaced as an error
// and never cached, so a later retry with a corrected descriptor succeeds.
func (r *Registry) Acquire(ctx context.Context, tenantID, descriptor string) (*sql.DB, error) {
	if tenantID == "" || descriptor == "" {
		return nil, fmt.Errorf("tenant_id and descriptor are required")
	}

	key := poolKey(tenantID, descriptor)

	r.mu.Lock()
	entry, ok := r.pools[key]
	if ok {
		r.mu.Unlock()
		select {
		case <-entry.ready:
			return entry.db, entry.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	entry = &poolEntry{ready: make(chan struct{})}
	r.pools[key] = entry
	r.mu.Unlock()

	// Build outside the registry lock so other keys proceed in parallel.
	entry.db, entry.err = r.build(ctx, descriptor)
	if entry.err != nil {
		// Failures are not cached; a later retry rebuilds from scratch.
		r.mu.Lock()
		delete(r.pools, key)
		r.mu.Unlock()
	} else {
		r.logger.Info("tenant pool created", zap.String("tenant_id", tenantID))
	}
	close(entry.ready)
	return entry.db, entry.err
}

func (r *Registry) build(ctx context.Context, descriptor string) (*sql.DB, error) {
	db, err := r.openFn(descriptor, r.maxConns, r.maxIdle)
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database: %w", err)
	}
	if err := r.pingFn(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tenant database unreachable: %w", err)
	}
	return db, nil
}

// CloseAll closes every cached pool. Called on shutdown only; entries still
// mid-construction are skipped, their builder owns the close on failure.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, entry := range r.pools {
		select {
		case <-entry.ready:
			if entry.db != nil {
				_ = entry.db.Close()
			}
			delete(r.pools, key)
		default:
		}
	}
}
