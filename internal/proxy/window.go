package proxy

import (
	"sync/atomic"
)

// Field is one cell of a window row
type Field struct {
	Value string `json:"value"`
	Null  bool   `json:"null,omitempty"`
}

// Window is a bounded row buffer filled by a Pager. Both the number of rows
// and the total bytes of string values are capped
type Window struct {
	maxRows  int
	maxBytes int
	refs     atomic.Int32

	start   int
	columns int
	rows    [][]Field
	bytes   int
}

// NewWindow creates a window holding at most maxRows rows and maxBytes bytes.
// A non-positive limit is unbounded
func NewWindow(maxRows, maxBytes int) *Window {
	return &Window{maxRows: maxRows, maxBytes: maxBytes}
}

// Acquire takes a reference on the window
func (w *Window) Acquire() {
	w.refs.Add(1)
}

// Release drops a reference taken with Acquire
func (w *Window) Release() {
	w.refs.Add(-1)
}

// Refs returns the number of outstanding references
func (w *Window) Refs() int {
	return int(w.refs.Load())
}

// Clear drops all rows and resets the column count. Slices returned by
// Rows before the call keep their contents
func (w *Window) Clear() {
	w.start = 0
	w.columns = 0
	w.rows = nil
	w.bytes = 0
}

// SetStartPosition records the result set position of the first row
func (w *Window) SetStartPosition(pos int) {
	w.start = pos
}

// StartPosition returns the result set position of the first row
func (w *Window) StartPosition() int {
	return w.start
}

// SetNumColumns sets the row width. It fails once rows are allocated
func (w *Window) SetNumColumns(n int) bool {
	if len(w.rows) > 0 || n < 0 {
		return false
	}
	w.columns = n
	return true
}

// NumColumns returns the row width
func (w *Window) NumColumns() int {
	return w.columns
}

// AllocRow appends an empty row. It reports false when the window is full
func (w *Window) AllocRow() bool {
	if w.maxRows > 0 && len(w.rows) >= w.maxRows {
		return false
	}
	w.rows = append(w.rows, make([]Field, w.columns))
	return true
}

// PutString stores value in column col of the last row. It reports false
// when the value does not fit the byte budget
func (w *Window) PutString(value string, col int) bool {
	row, ok := w.cell(col)
	if !ok {
		return false
	}
	if w.maxBytes > 0 && w.bytes+len(value) > w.maxBytes {
		return false
	}
	w.bytes += len(value)
	row[col] = Field{Value: value}
	return true
}

// PutNull marks column col of the last row as null
func (w *Window) PutNull(col int) bool {
	row, ok := w.cell(col)
	if !ok {
		return false
	}
	row[col] = Field{Null: true}
	return true
}

// FreeLastRow removes the last row and returns its bytes to the budget
func (w *Window) FreeLastRow() {
	if len(w.rows) == 0 {
		return
	}
	last := w.rows[len(w.rows)-1]
	for _, f := range last {
		w.bytes -= len(f.Value)
	}
	w.rows = w.rows[:len(w.rows)-1]
}

// NumRows returns the number of rows held
func (w *Window) NumRows() int {
	return len(w.rows)
}

// Rows returns the rows held
func (w *Window) Rows() [][]Field {
	return w.rows
}

// Bytes returns the bytes of string values held
func (w *Window) Bytes() int {
	return w.bytes
}

func (w *Window) cell(col int) ([]Field, bool) {
	if len(w.rows) == 0 || col < 0 || col >= w.columns {
		return nil, false
	}
	return w.rows[len(w.rows)-1], true
}
