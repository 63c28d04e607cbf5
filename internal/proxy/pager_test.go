package proxy

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vdb/internal/repository"
)

func testRows(n int) *repository.Rows {
	data := make([][]sql.NullString, n)
	for i := range data {
		data[i] = []sql.NullString{
			{String: fmt.Sprint(i), Valid: true},
			{String: fmt.Sprintf("row-%d", i), Valid: i%2 == 0},
		}
	}
	return repository.NewRows([]string{"_id", "title"}, data)
}

// faultyRows fails when reading row failAt
type faultyRows struct {
	*repository.Rows
	failAt int
	panics bool
}

func (f *faultyRows) Field(col int) (sql.NullString, error) {
	if f.Position() == f.failAt {
		if f.panics {
			panic("corrupt row")
		}
		return sql.NullString{}, errors.New("corrupt row")
	}
	return f.Rows.Field(col)
}

func quietLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestFillWindowAll(t *testing.T) {
	p := NewPager(testRows(3), nil)
	w := NewWindow(10, 0)

	n := p.FillWindow(0, w)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, w.StartPosition())
	assert.Equal(t, 2, w.NumColumns())
	assert.Equal(t, []Field{{Value: "0"}, {Value: "row-0"}}, w.Rows()[0])
	assert.Equal(t, []Field{{Value: "1"}, {Null: true}}, w.Rows()[1])
	assert.Equal(t, 0, w.Refs())
}

func TestFillWindowFromPosition(t *testing.T) {
	p := NewPager(testRows(5), nil)
	w := NewWindow(2, 0)

	assert.Equal(t, 2, p.FillWindow(2, w))
	assert.Equal(t, 2, w.StartPosition())
	assert.Equal(t, "2", w.Rows()[0][0].Value)
	assert.Equal(t, "3", w.Rows()[1][0].Value)

	// Refilling clears previous rows
	assert.Equal(t, 1, p.FillWindow(4, w))
	assert.Equal(t, "4", w.Rows()[0][0].Value)

	// The end position is valid and yields nothing
	assert.Equal(t, 0, p.FillWindow(5, w))
	assert.Equal(t, 0, w.NumRows())
}

func TestFillWindowKeepsEarlierRows(t *testing.T) {
	p := NewPager(testRows(4), nil)
	w := NewWindow(2, 0)

	require.Equal(t, 2, p.FillWindow(0, w))
	first := w.Rows()

	require.Equal(t, 2, p.FillWindow(2, w))
	assert.Equal(t, "0", first[0][0].Value)
	assert.Equal(t, "1", first[1][0].Value)
	assert.Equal(t, "2", w.Rows()[0][0].Value)
}

func TestFillWindowOutOfRangeLeavesWindowUntouched(t *testing.T) {
	p := NewPager(testRows(2), nil)
	w := NewWindow(10, 0)
	require.Equal(t, 2, p.FillWindow(0, w))

	assert.Equal(t, 0, p.FillWindow(-1, w))
	assert.Equal(t, 0, p.FillWindow(3, w))
	assert.Equal(t, 2, w.NumRows())
	assert.Equal(t, 0, w.Refs())
}

func TestFillWindowByteBudget(t *testing.T) {
	p := NewPager(testRows(10), nil)
	// Rows 0 and 1 take 6 and 1 bytes, row 2 would need 6 more
	w := NewWindow(0, 10)

	n := p.FillWindow(0, w)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, w.NumRows())
	assert.LessOrEqual(t, w.Bytes(), 10)
}

func TestFillWindowFaultEndsPage(t *testing.T) {
	for _, panics := range []bool{false, true} {
		t.Run(fmt.Sprintf("panics=%v", panics), func(t *testing.T) {
			logger, buf := quietLogger()
			p := NewPager(&faultyRows{Rows: testRows(5), failAt: 2, panics: panics}, logger)
			w := NewWindow(10, 0)

			var n int
			require.NotPanics(t, func() { n = p.FillWindow(0, w) })
			assert.Equal(t, 2, n)
			assert.Equal(t, 2, w.NumRows(), "partial row must be dropped")
			assert.Equal(t, 0, w.Refs(), "window must be released")
			assert.Contains(t, buf.String(), "fault while filling window")
		})
	}
}

func TestPagerDelegates(t *testing.T) {
	rows := testRows(3)
	p := NewPager(rows, nil)
	assert.Equal(t, 3, p.Count())
	assert.Equal(t, []string{"_id", "title"}, p.Columns())
	require.NoError(t, p.Close())
}
