package repository

import (
	"database/sql"
	"fmt"
)

// ResultSet is a positioned cursor over query results. The position starts
// before the first row at -1
type ResultSet interface {
	Columns() []string
	Count() int
	Position() int
	// MoveTo positions the cursor and reports whether it is on a row.
	MoveTo(position int) bool
	Next() bool
	Field(column int) (sql.NullString, error)
	Close() error
}

// Rows is a ResultSet over rows held in memory
type Rows struct {
	columns []string
	data    [][]sql.NullString
	pos     int
	closed  bool
}

// NewRows creates a result set positioned before the first row
func NewRows(columns []string, data [][]sql.NullString) *Rows {
	return &Rows{columns: columns, data: data, pos: -1}
}

// Columns returns the column names
func (r *Rows) Columns() []string {
	return r.columns
}

// Count returns the number of rows
func (r *Rows) Count() int {
	return len(r.data)
}

// Position returns the current row index
func (r *Rows) Position() int {
	return r.pos
}

// MoveTo moves to position, clamped to [-1, Count()]
func (r *Rows) MoveTo(position int) bool {
	switch {
	case position < -1:
		r.pos = -1
	case position > len(r.data):
		r.pos = len(r.data)
	default:
		r.pos = position
	}
	return r.onRow()
}

// Next advances to the next row
func (r *Rows) Next() bool {
	if r.pos < len(r.data) {
		r.pos++
	}
	return r.onRow()
}

// Field returns the value of column on the current row
func (r *Rows) Field(column int) (sql.NullString, error) {
	if r.closed {
		return sql.NullString{}, fmt.Errorf("result set is closed")
	}
	if !r.onRow() {
		return sql.NullString{}, fmt.Errorf("no current row at position %d", r.pos)
	}
	row := r.data[r.pos]
	if column < 0 || column >= len(row) {
		return sql.NullString{}, fmt.Errorf("column %d out of range", column)
	}
	return row[column], nil
}

// Close releases the rows
func (r *Rows) Close() error {
	r.closed = true
	r.data = nil
	return nil
}

func (r *Rows) onRow() bool {
	return !r.closed && r.pos >= 0 && r.pos < len(r.data)
}
