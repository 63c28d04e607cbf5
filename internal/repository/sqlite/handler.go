package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	vdberrors "vdb/internal/errors"
	"vdb/internal/identifier"
	"vdb/internal/repository"
	"vdb/internal/schema"
)

const (
	// TypeDir is the type prefix for entity collections
	TypeDir = "vnd.vdb.cursor.dir/"
	// TypeItem is the type prefix for single entities
	TypeItem = "vnd.vdb.cursor.item/"
)

var sortTerm = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\s+(?i:(ASC|DESC)))?$`)

// SchemaHandler serves one record schema as one entity table
type SchemaHandler struct {
	def    *schema.Definition
	unique []string

	db     *sql.DB
	logger *slog.Logger
}

// HandlerOption configures a SchemaHandler
type HandlerOption func(*SchemaHandler)

// WithUniqueIndex adds a unique index over field
func WithUniqueIndex(field string) HandlerOption {
	return func(h *SchemaHandler) {
		h.unique = append(h.unique, field)
	}
}

// NewSchemaHandler creates a handler for def
func NewSchemaHandler(def *schema.Definition, opts ...HandlerOption) (*SchemaHandler, error) {
	if def == nil {
		return nil, fmt.Errorf("schema definition is required")
	}
	h := &SchemaHandler{def: def, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	for _, name := range h.unique {
		if _, ok := def.Field(name); !ok {
			return nil, fmt.Errorf("unique index on unknown field %q", name)
		}
	}
	return h, nil
}

// Constructor adapts NewSchemaHandler to repository.SchemaConstructor
func Constructor(def *schema.Definition) (repository.Handler, error) {
	return NewSchemaHandler(def)
}

// Definition returns the schema the handler serves
func (h *SchemaHandler) Definition() *schema.Definition {
	return h.def
}

// Initializer creates the entity table and adds columns introduced by later
// versions of the schema
func (h *SchemaHandler) Initializer() repository.Initializer {
	return &tableInitializer{def: h.def, unique: h.unique}
}

// Attach binds the handler to its store
func (h *SchemaHandler) Attach(_ context.Context, host repository.Host) error {
	if host.DB == nil {
		return fmt.Errorf("no store for %s", host.Repository)
	}
	h.db = host.DB
	if host.Logger != nil {
		h.logger = host.Logger.With("entity", h.def.Name)
	}
	return nil
}

// Type returns the collection or item type of the addressed entity
func (h *SchemaHandler) Type(_ context.Context, m identifier.Match) (string, error) {
	if err := h.checkEntity(m); err != nil {
		return "", err
	}
	if m.ID != "" {
		return TypeItem + h.def.FullName(), nil
	}
	return TypeDir + h.def.FullName(), nil
}

// Query reads rows from the entity table
func (h *SchemaHandler) Query(ctx context.Context, m identifier.Match, q repository.Query) (repository.ResultSet, error) {
	if err := h.ready(m); err != nil {
		return nil, err
	}

	columns, err := h.projection(q.Projection)
	if err != nil {
		return nil, err
	}
	order, err := h.sortOrder(q.SortOrder)
	if err != nil {
		return nil, err
	}

	where, args := h.where(m, q.Selection, q.Args)
	query := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(columns, ", "), quoteIdent(h.def.Name), where)
	if order != "" {
		query += " ORDER BY " + order
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", h.def.Name, err)
	}
	defer rows.Close()

	names, data, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	return repository.NewRows(names, data), nil
}

// Insert adds a row and returns its identifier
func (h *SchemaHandler) Insert(ctx context.Context, m identifier.Match, values repository.Values) (*url.URL, error) {
	if err := h.ready(m); err != nil {
		return nil, err
	}
	if m.ID != "" {
		return nil, vdberrors.Newf(vdberrors.CodeInvalidArgument, "cannot insert into item %s", m.URI)
	}

	for _, f := range h.def.Fields {
		if _, ok := values[f.Name]; !ok && !f.Nullable {
			return nil, vdberrors.Newf(vdberrors.CodeInvalidArgument, "field %s is required", f.Name)
		}
	}
	columns, args, err := h.assignments(values)
	if err != nil {
		return nil, err
	}

	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(h.def.Name),
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))

	res, err := h.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isConstraintError(err) {
			return nil, vdberrors.Wrap(vdberrors.CodeConflict, "insert into "+h.def.Name, err)
		}
		return nil, fmt.Errorf("failed to insert into %s: %w", h.def.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read row id: %w", err)
	}

	base := *m.URI
	base.RawQuery = ""
	base.Fragment = ""
	return identifier.WithID(&base, strconv.FormatInt(id, 10)), nil
}

// Update changes matching rows
func (h *SchemaHandler) Update(ctx context.Context, m identifier.Match, values repository.Values, selection string, args []string) (int64, error) {
	if err := h.ready(m); err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, vdberrors.New(vdberrors.CodeInvalidArgument, "no values to update")
	}

	columns, setArgs, err := h.assignments(values)
	if err != nil {
		return 0, err
	}
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = quoteIdent(c) + " = ?"
	}

	where, whereArgs := h.where(m, selection, args)
	query := fmt.Sprintf("UPDATE %s SET %s%s", quoteIdent(h.def.Name), strings.Join(sets, ", "), where)

	res, err := h.db.ExecContext(ctx, query, append(setArgs, whereArgs...)...)
	if err != nil {
		if isConstraintError(err) {
			return 0, vdberrors.Wrap(vdberrors.CodeConflict, "update "+h.def.Name, err)
		}
		return 0, fmt.Errorf("failed to update %s: %w", h.def.Name, err)
	}
	return res.RowsAffected()
}

// Delete removes matching rows
func (h *SchemaHandler) Delete(ctx context.Context, m identifier.Match, selection string, args []string) (int64, error) {
	if err := h.ready(m); err != nil {
		return 0, err
	}

	where, whereArgs := h.where(m, selection, args)
	res, err := h.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", quoteIdent(h.def.Name), where), whereArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", h.def.Name, err)
	}
	return res.RowsAffected()
}

func (h *SchemaHandler) ready(m identifier.Match) error {
	if h.db == nil {
		return fmt.Errorf("handler for %s is not attached", h.def.FullName())
	}
	return h.checkEntity(m)
}

func (h *SchemaHandler) checkEntity(m identifier.Match) error {
	if m.Entity != h.def.Name {
		return vdberrors.WithMetadata(vdberrors.CodeNotFound,
			fmt.Sprintf("repository %s has no entity %q", m.Repository, m.Entity),
			map[string]string{"repository": m.Repository, "entity": m.Entity})
	}
	if m.ID != "" {
		if _, err := strconv.ParseInt(m.ID, 10, 64); err != nil {
			return vdberrors.Newf(vdberrors.CodeInvalidArgument, "invalid id %q", m.ID)
		}
	}
	return nil
}

func (h *SchemaHandler) projection(requested []string) ([]string, error) {
	if len(requested) == 0 {
		columns := []string{quoteIdent(schema.ColumnID)}
		for _, f := range h.def.Fields {
			columns = append(columns, quoteIdent(f.Name))
		}
		return columns, nil
	}

	columns := make([]string, 0, len(requested))
	for _, name := range requested {
		if !h.hasColumn(name) {
			return nil, vdberrors.Newf(vdberrors.CodeInvalidArgument, "unknown column %q", name)
		}
		columns = append(columns, quoteIdent(name))
	}
	return columns, nil
}

func (h *SchemaHandler) sortOrder(order string) (string, error) {
	if strings.TrimSpace(order) == "" {
		return "", nil
	}

	var terms []string
	for _, term := range strings.Split(order, ",") {
		match := sortTerm.FindStringSubmatch(strings.TrimSpace(term))
		if match == nil || !h.hasColumn(match[1]) {
			return "", vdberrors.Newf(vdberrors.CodeInvalidArgument, "invalid sort term %q", term)
		}
		t := quoteIdent(match[1])
		if match[2] != "" {
			t += " " + strings.ToUpper(match[2])
		}
		terms = append(terms, t)
	}
	return strings.Join(terms, ", "), nil
}

// where combines the caller's selection with the identifier's row id
func (h *SchemaHandler) where(m identifier.Match, selection string, args []string) (string, []any) {
	var clauses []string
	var out []any

	if s := strings.TrimSpace(selection); s != "" {
		clauses = append(clauses, "("+s+")")
		for _, a := range args {
			out = append(out, a)
		}
	}
	if m.ID != "" {
		clauses = append(clauses, quoteIdent(schema.ColumnID)+" = ?")
		out = append(out, m.ID)
	}
	if len(clauses) == 0 {
		return "", out
	}
	return " WHERE " + strings.Join(clauses, " AND "), out
}

// assignments validates values and returns columns in a stable order
func (h *SchemaHandler) assignments(values repository.Values) ([]string, []any, error) {
	columns := make([]string, 0, len(values))
	for name := range values {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	args := make([]any, 0, len(columns))
	for _, name := range columns {
		f, ok := h.def.Field(name)
		if !ok {
			return nil, nil, vdberrors.Newf(vdberrors.CodeInvalidArgument, "unknown field %q", name)
		}
		v, err := columnValue(f, values[name])
		if err != nil {
			return nil, nil, vdberrors.Wrap(vdberrors.CodeInvalidArgument, "invalid value", err)
		}
		args = append(args, v)
	}
	return columns, args, nil
}

func (h *SchemaHandler) hasColumn(name string) bool {
	if name == schema.ColumnID {
		return true
	}
	_, ok := h.def.Field(name)
	return ok
}

// tableInitializer creates the entity table. Columns added by a newer
// schema version are appended with ALTER TABLE
type tableInitializer struct {
	def    *schema.Definition
	unique []string
}

func (t *tableInitializer) Key() string {
	return "schema:" + t.def.FullName() + ":" + t.def.Fingerprint()
}

func (t *tableInitializer) Initialize(ctx context.Context, tx *sql.Tx) error {
	table := quoteIdent(t.def.Name)

	columns := []string{quoteIdent(schema.ColumnID) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, f := range t.def.Fields {
		columns = append(columns, quoteIdent(f.Name)+" "+f.Type.SQLType())
	}
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(columns, ",\n\t"))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.def.Name, err)
	}

	for _, f := range t.def.Fields {
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, quoteIdent(f.Name), f.Type.SQLType())
		if _, err := tx.ExecContext(ctx, alter); err != nil && !isAlreadyExistsError(err) {
			return fmt.Errorf("failed to add column %s: %w", f.Name, err)
		}
	}

	for _, field := range t.unique {
		index := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
			quoteIdent("idx_"+t.def.Name+"_"+field), table, quoteIdent(field))
		if _, err := tx.ExecContext(ctx, index); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", field, err)
		}
	}
	return nil
}
