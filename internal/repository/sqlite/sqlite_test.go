package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"vdb/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestBinding creates an in-memory binding for testing
func newTestBinding(t *testing.T) *Binding {
	t.Helper()
	b, err := New(Memory)
	if err != nil {
		t.Fatalf("failed to create test binding: %v", err)
	}
	t.Cleanup(func() {
		b.Close()
	})
	return b
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// countingInit records how often it runs
type countingInit struct {
	key   string
	calls int
	err   error
}

func (c *countingInit) Key() string { return c.key }

func (c *countingInit) Initialize(ctx context.Context, tx *sql.Tx) error {
	c.calls++
	if c.err != nil {
		return c.err
	}
	_, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS t (v TEXT)")
	return err
}

// ============================================================================
// Binding Tests
// ============================================================================

func TestProvisionRunsInitializerOnce(t *testing.T) {
	b := newTestBinding(t)
	ctx := context.Background()
	init := &countingInit{key: "v1"}

	assertNoError(t, b.Provision(ctx, "notes", init))
	assertNoError(t, b.Provision(ctx, "notes", init))
	assertEqual(t, 1, init.calls)

	// A new key runs again
	init2 := &countingInit{key: "v2"}
	assertNoError(t, b.Provision(ctx, "notes", init2))
	assertEqual(t, 1, init2.calls)
}

func TestProvisionFailureIsNotRecorded(t *testing.T) {
	b := newTestBinding(t)
	ctx := context.Background()
	init := &countingInit{key: "v1", err: errors.New("disk on fire")}

	if err := b.Provision(ctx, "notes", init); err == nil {
		t.Fatal("expected provisioning error")
	}

	init.err = nil
	assertNoError(t, b.Provision(ctx, "notes", init))
	assertEqual(t, 2, init.calls)
}

func TestProvisionNilInitializer(t *testing.T) {
	b := newTestBinding(t)
	assertNoError(t, b.Provision(context.Background(), "bare", nil))
}

func TestStoreIsCached(t *testing.T) {
	b := newTestBinding(t)
	ctx := context.Background()

	db1, err := b.Store(ctx, "notes")
	assertNoError(t, err)
	db2, err := b.Store(ctx, "notes")
	assertNoError(t, err)

	if db1 != db2 {
		t.Fatal("expected the same database for the same repository")
	}
}

func TestMemoryBindingsAreIsolated(t *testing.T) {
	ctx := context.Background()
	a := newTestBinding(t)
	b := newTestBinding(t)

	assertNoError(t, a.Provision(ctx, "notes", &countingInit{key: "v1"}))

	db, err := b.Store(ctx, "notes")
	assertNoError(t, err)
	applied, err := isApplied(ctx, db, "v1")
	assertNoError(t, err)
	assertEqual(t, false, applied)
}

func TestFileBindingPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := New(dir)
	assertNoError(t, err)
	init := &countingInit{key: "v1"}
	assertNoError(t, b.Provision(ctx, "notes", init))
	assertNoError(t, b.Close())

	b, err = New(dir)
	assertNoError(t, err)
	defer b.Close()
	assertNoError(t, b.Provision(ctx, "notes", init))
	assertEqual(t, 1, init.calls)
}

func TestStoreRejectsBadNames(t *testing.T) {
	b := newTestBinding(t)
	for _, name := range []string{"", "  ", "a/b", `a\b`, "..", "a..b"} {
		if _, err := b.Store(context.Background(), name); err == nil {
			t.Errorf("expected error for %q", name)
		}
	}
}

func TestClosedBinding(t *testing.T) {
	b, err := New(Memory)
	assertNoError(t, err)
	assertNoError(t, b.Close())

	if _, err := b.Store(context.Background(), "notes"); err == nil {
		t.Fatal("expected error from closed binding")
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestQuoteIdent(t *testing.T) {
	assertEqual(t, `"name"`, quoteIdent("name"))
	assertEqual(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assertEqual(t, true, isAlreadyExistsError(errors.New("SQL logic error: duplicate column name: title (1)")))
	assertEqual(t, true, isAlreadyExistsError(errors.New("table x already exists")))
	assertEqual(t, false, isAlreadyExistsError(errors.New("no such table")))
}

var _ repository.Binding = (*Binding)(nil)
