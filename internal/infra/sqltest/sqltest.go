// Package sqltest provides in-memory infra.SQLExecutor fakes for repository
// and handler tests.
package sqltest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Row is a pgx.Row backed by a scan func. A nil func reports pgx.ErrNoRows.
type Row struct {
	scan func(dest ...any) error
}

func NewRow(scanner func(dest ...any) error) Row {
	return Row{scan: scanner}
}

// ValuesRow scans values into dest positionally.
func ValuesRow(values ...any) Row {
	return Row{scan: func(dest ...any) error { return Assign(dest, values...) }}
}

// ErrRow fails every Scan with err.
func ErrRow(err error) Row {
	return Row{scan: func(...any) error { return err }}
}

func (r Row) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// Rows is a pgx.Rows over fixed records.
type Rows struct {
	records [][]any
	idx     int
	err     error
	closed  bool
}

func NewRows(records ...[]any) *Rows {
	return &Rows{records: records, idx: -1}
}

// WithErr makes Err report err once iteration ends.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	if r.idx >= len(r.records) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.records) {
		return fmt.Errorf("sqltest: scan outside of rows")
	}
	return Assign(dest, r.records[r.idx]...)
}

func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Closed() bool                                 { return r.closed }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *Rows) Conn() *pgx.Conn                              { return nil }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }

func (r *Rows) Values() ([]any, error) {
	return nil, fmt.Errorf("sqltest: values not supported")
}

// Assign copies values into the pointers in dest. A nil value zeroes the target.
func Assign(dest []any, values ...any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("sqltest: %d destinations for %d values", len(dest), len(values))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("sqltest: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		if !v.Type().AssignableTo(elem.Type()) {
			return fmt.Errorf("sqltest: cannot assign %T to %s", values[i], elem.Type())
		}
		elem.Set(v)
	}
	return nil
}

// Call is one recorded executor invocation.
type Call struct {
	Method string
	Query  string
	Args   []any
}

// Executor is a programmable infra.SQLExecutor. Unset funcs answer with an
// empty result.
type Executor struct {
	ExecFunc     func(query string, args ...any) (pgconn.CommandTag, error)
	QueryRowFunc func(query string, args ...any) pgx.Row
	QueryFunc    func(query string, args ...any) (pgx.Rows, error)

	mu    sync.Mutex
	calls []Call
}

func (e *Executor) record(method, query string, args []any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, Call{Method: method, Query: query, Args: args})
}

// Calls returns the invocations seen so far.
func (e *Executor) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.calls...)
}

func (e *Executor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	e.record("Exec", query, args)
	if e.ExecFunc == nil {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return e.ExecFunc(query, args...)
}

func (e *Executor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	e.record("QueryRow", query, args)
	if e.QueryRowFunc == nil {
		return Row{}
	}
	return e.QueryRowFunc(query, args...)
}

func (e *Executor) Query(_ context.Context, query string, args ...any) (pgx.Rows, error) {
	e.record("Query", query, args)
	if e.QueryFunc == nil {
		return NewRows(), nil
	}
	return e.QueryFunc(query, args...)
}
