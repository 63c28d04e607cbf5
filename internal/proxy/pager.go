package proxy

import (
	"fmt"
	"log/slog"

	"vdb/internal/repository"
)

// Pager copies a result set into windows
type Pager struct {
	rs     repository.ResultSet
	logger *slog.Logger
}

// NewPager wraps rs
func NewPager(rs repository.ResultSet, logger *slog.Logger) *Pager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pager{rs: rs, logger: logger}
}

// Count returns the number of rows in the result set
func (p *Pager) Count() int {
	return p.rs.Count()
}

// Columns returns the result set's column names
func (p *Pager) Columns() []string {
	return p.rs.Columns()
}

// Close closes the result set
func (p *Pager) Close() error {
	return p.rs.Close()
}

// FillWindow copies rows starting at position into w until w is full or the
// rows run out, and returns the number of rows copied. A position outside
// [0, Count()] leaves w untouched. Faults while copying end the page early
// and are logged, never returned
func (p *Pager) FillWindow(position int, w *Window) int {
	if position < 0 || position > p.rs.Count() {
		return 0
	}

	w.Acquire()
	defer w.Release()

	w.Clear()
	w.SetStartPosition(position)
	w.SetNumColumns(len(p.rs.Columns()))
	p.rs.MoveTo(position - 1)

	return p.copyRows(position, w)
}

func (p *Pager) copyRows(position int, w *Window) (copied int) {
	open := false
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("fault while filling window", "position", position+copied, "panic", fmt.Sprint(r))
			if open {
				w.FreeLastRow()
			}
		}
	}()

	columns := w.NumColumns()
	for p.rs.Next() {
		if !w.AllocRow() {
			return copied
		}
		open = true

		for col := 0; col < columns; col++ {
			v, err := p.rs.Field(col)
			if err != nil {
				p.logger.Error("fault while filling window", "position", position+copied, "column", col, "error", err)
				w.FreeLastRow()
				return copied
			}

			var ok bool
			if v.Valid {
				ok = w.PutString(v.String, col)
			} else {
				ok = w.PutNull(col)
			}
			if !ok {
				w.FreeLastRow()
				return copied
			}
		}

		open = false
		copied++
	}
	return copied
}
