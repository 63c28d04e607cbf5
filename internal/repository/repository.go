package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"

	"vdb/internal/identifier"
	"vdb/internal/schema"
)

// Values holds column values for insert and update
type Values map[string]any

// Query describes a read against an entity
type Query struct {
	Projection []string `json:"projection,omitempty"`
	Selection  string   `json:"selection,omitempty"`
	Args       []string `json:"args,omitempty"`
	SortOrder  string   `json:"sort,omitempty"`
}

// Handler serves CRUD operations for a single repository
type Handler interface {
	// Initializer returns what the store must run before first use
	Initializer() Initializer
	// Attach binds the handler to its hosting context
	Attach(ctx context.Context, host Host) error

	Query(ctx context.Context, m identifier.Match, q Query) (ResultSet, error)
	Insert(ctx context.Context, m identifier.Match, values Values) (*url.URL, error)
	Update(ctx context.Context, m identifier.Match, values Values, selection string, args []string) (int64, error)
	Delete(ctx context.Context, m identifier.Match, selection string, args []string) (int64, error)
	Type(ctx context.Context, m identifier.Match) (string, error)
}

// Initializer prepares a repository store. A store applies each key at most
// once
type Initializer interface {
	Key() string
	Initialize(ctx context.Context, tx *sql.Tx) error
}

// Host is the context a handler is attached to
type Host struct {
	Repository string
	DB         *sql.DB
	Logger     *slog.Logger
}

// Binding provisions and opens repository stores
type Binding interface {
	Provision(ctx context.Context, name string, init Initializer) error
	Store(ctx context.Context, name string) (*sql.DB, error)
}

// Surface is the identifier-addressed CRUD surface
type Surface interface {
	Query(ctx context.Context, u *url.URL, q Query) (ResultSet, error)
	Insert(ctx context.Context, u *url.URL, values Values) (*url.URL, error)
	Update(ctx context.Context, u *url.URL, values Values, selection string, args []string) (int64, error)
	Delete(ctx context.Context, u *url.URL, selection string, args []string) (int64, error)
	Type(ctx context.Context, u *url.URL) (string, error)
}

// SchemaConstructor builds a handler from a parsed schema definition
type SchemaConstructor func(def *schema.Definition) (Handler, error)

// Statements is an Initializer that runs a fixed list of statements
type Statements struct {
	ID  string
	SQL []string
}

// Key implements Initializer
func (s Statements) Key() string {
	return s.ID
}

// Initialize implements Initializer
func (s Statements) Initialize(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range s.SQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
