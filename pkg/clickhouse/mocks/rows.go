package mocks

import (
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Rows is an in-memory driver.Rows. Each record holds one value per column,
// assigned to Scan destinations by type.
type Rows struct {
	Records [][]any
	// ScanErr, when set, is returned by the first Scan.
	ScanErr error
	// IterErr is reported by Err after iteration.
	IterErr error
	Closed  bool

	pos int
}

var _ driver.Rows = (*Rows)(nil)

// NewRows builds Rows from records.
func NewRows(records ...[]any) *Rows {
	return &Rows{Records: records}
}

func (r *Rows) Next() bool {
	if r.pos >= len(r.Records) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.ScanErr != nil {
		return r.ScanErr
	}
	if r.pos == 0 || r.pos > len(r.Records) {
		return errors.New("scan called without a current row")
	}
	return assign(r.Records[r.pos-1], dest)
}

func (r *Rows) ScanStruct(any) error {
	return errors.New("ScanStruct not supported by mocks.Rows")
}

func (r *Rows) ColumnTypes() []driver.ColumnType { return nil }

func (r *Rows) Totals(...any) error { return nil }

func (r *Rows) Columns() []string { return nil }

func (r *Rows) Close() error {
	r.Closed = true
	return nil
}

func (r *Rows) Err() error { return r.IterErr }

// Row is an in-memory driver.Row. A Row without values scans as
// sql.ErrNoRows.
type Row struct {
	Values []any
	Error  error
}

var _ driver.Row = Row{}

// NoRows returns a Row that reports sql.ErrNoRows.
func NoRows() Row { return Row{Error: sql.ErrNoRows} }

func (r Row) Err() error { return r.Error }

func (r Row) Scan(dest ...any) error {
	if r.Error != nil {
		return r.Error
	}
	if r.Values == nil {
		return sql.ErrNoRows
	}
	return assign(r.Values, dest)
}

func (r Row) ScanStruct(any) error {
	return errors.New("ScanStruct not supported by mocks.Row")
}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(values))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("scan: destination %d is not a pointer", i)
		}
		v := reflect.ValueOf(values[i])
		if !v.IsValid() {
			dv.Elem().SetZero()
			continue
		}
		if !v.Type().AssignableTo(dv.Elem().Type()) {
			return fmt.Errorf("scan: column %d is %s, destination is %s", i, v.Type(), dv.Elem().Type())
		}
		dv.Elem().Set(v)
	}
	return nil
}
