// Package sqlite provides the SQLite storage binding and the generic
// schema-driven handler.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"vdb/internal/repository"
)

// Memory selects in-memory stores when passed as the binding directory
const Memory = ":memory:"

const initializerTable = "vdb_initializers"

// Binding opens one SQLite database per repository
type Binding struct {
	dir       string
	namespace string
	logger    *slog.Logger

	mu     sync.Mutex
	stores map[string]*sql.DB
}

// Option configures a Binding
type Option func(*Binding)

// WithLogger sets the binding's logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Binding) {
		b.logger = logger
	}
}

// New creates a binding rooted at dir. Pass Memory for in-memory stores
func New(dir string, opts ...Option) (*Binding, error) {
	b := &Binding{
		dir:    dir,
		logger: slog.Default(),
		stores: make(map[string]*sql.DB),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.memory() {
		// Keeps the in-memory databases of separate bindings apart
		b.namespace = uuid.NewString()
		return b, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return b, nil
}

func (b *Binding) memory() bool {
	return b.dir == "" || b.dir == Memory
}

// Store returns the database for the named repository, opening it on first use
func (b *Binding) Store(ctx context.Context, name string) (*sql.DB, error) {
	if err := validStoreName(name); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stores == nil {
		return nil, fmt.Errorf("binding is closed")
	}
	if db, ok := b.stores[name]; ok {
		return db, nil
	}

	db, err := b.open(ctx, name)
	if err != nil {
		return nil, err
	}
	b.stores[name] = db
	return db, nil
}

func (b *Binding) open(ctx context.Context, name string) (*sql.DB, error) {
	var dsn string
	if b.memory() {
		dsn = fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", b.namespace, name)
	} else {
		path := filepath.Join(b.dir, name+".db")
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if b.memory() {
		// Every connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	createSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		key TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`, initializerTable)
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare initializer table: %w", err)
	}

	b.logger.Debug("opened repository store", "repository", name, "memory", b.memory())
	return db, nil
}

// Provision opens the repository store and applies init once per key
func (b *Binding) Provision(ctx context.Context, name string, init repository.Initializer) error {
	db, err := b.Store(ctx, name)
	if err != nil {
		return err
	}
	if init == nil {
		return nil
	}

	key := init.Key()
	applied, err := isApplied(ctx, db, key)
	if err != nil {
		return fmt.Errorf("failed to check initializer %s: %w", key, err)
	}
	if applied {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := init.Initialize(ctx, tx); err != nil {
		return fmt.Errorf("failed to initialize %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO "+initializerTable+" (key, applied_at) VALUES (?, ?)",
		key, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to record initializer %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit initializer %s: %w", key, err)
	}

	b.logger.Info("provisioned repository store", "repository", name, "initializer", key)
	return nil
}

// Close closes every open store
func (b *Binding) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for name, db := range b.stores {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close %s: %w", name, err)
		}
	}
	b.stores = nil
	return firstErr
}

func isApplied(ctx context.Context, db *sql.DB, key string) (bool, error) {
	var found int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM "+initializerTable+" WHERE key = ?", key).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func validStoreName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("repository name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("invalid repository name %q", name)
	}
	return nil
}
