package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"vdb/internal/schema"
)

// ============================================================================
// SQL Helpers
// ============================================================================

// quoteIdent quotes a table or column name
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// isConstraintError reports whether err is a primary key or unique violation
func isConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// isAlreadyExistsError reports whether err indicates idempotent DDL success
func isAlreadyExistsError(err error) bool {
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "already exists") || strings.Contains(value, "duplicate column name")
}

// scanRows reads every row into memory as nullable strings
func scanRows(rows *sql.Rows) ([]string, [][]sql.NullString, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var data [][]sql.NullString
	for rows.Next() {
		row := make([]sql.NullString, len(columns))
		args := make([]any, len(columns))
		for i := range row {
			args[i] = &row[i]
		}
		if err := rows.Scan(args...); err != nil {
			return nil, nil, fmt.Errorf("failed to scan row: %w", err)
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate rows: %w", err)
	}
	return columns, data, nil
}

// ============================================================================
// Value Conversion
// ============================================================================

// columnValue converts a decoded value into the storage form of field f.
// Values arrive from JSON bodies, query strings or Go callers
func columnValue(f schema.Field, v any) (any, error) {
	if v == nil {
		if !f.Nullable {
			return nil, fmt.Errorf("field %s is not nullable", f.Name)
		}
		return nil, nil
	}

	switch f.Type {
	case schema.Int, schema.Long:
		return toInteger(f.Name, v)
	case schema.Boolean:
		switch b := v.(type) {
		case bool:
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			return columnValue(f, parsed)
		default:
			return toInteger(f.Name, v)
		}
	case schema.Float, schema.Double:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case string:
			parsed, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", f.Name, err)
			}
			return parsed, nil
		}
	case schema.Bytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
	default:
		switch s := v.(type) {
		case string:
			return s, nil
		case fmt.Stringer:
			return s.String(), nil
		default:
			return fmt.Sprint(s), nil
		}
	}
	return nil, fmt.Errorf("field %s: cannot store %T as %s", f.Name, v, f.Type)
}

func toInteger(name string, v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("field %s: %v is not an integer", name, n)
		}
		return int64(n), nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", name, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("field %s: cannot store %T as integer", name, v)
}
