// Package testutil provides a database/sql driver that understands the
// handful of statements the postgres collection store issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var driverSeq atomic.Uint64

// StubConn is a single shared connection holding the collections table in
// memory. Statements are recorded in issue order.
type StubConn struct {
	mu sync.Mutex

	Execs   []string
	Queries []string
	// Tables maps table name to rows; only "collections" is populated.
	Tables map[string][]map[string]any

	FailExec   bool
	FailBegin  bool
	FailCommit bool
}

// NewStubDB registers a fresh driver instance and opens a sql.DB on it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("officeflow-stubpg-%d", driverSeq.Add(1))
	sql.Register(name, stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct{ conn *StubConn }

func (d stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

// Prepare implements driver.Conn; every statement goes through the context
// fast paths instead.
func (c *StubConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("stubpg: prepared statements unsupported")
}

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, errors.New("stubpg: begin failed")
	}
	return stubTx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailExec {
		return errors.New("stubpg: unreachable")
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.FailExec {
		return nil, errors.New("stubpg: exec failed")
	}
	c.Execs = append(c.Execs, query)
	q := normalize(query)
	switch {
	case strings.HasPrefix(q, "create table"), strings.Contains(q, "pg_advisory_xact_lock"):
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(q, "insert into collections"):
		if len(args) != 2 {
			return nil, fmt.Errorf("stubpg: upsert wants 2 args, got %d", len(args))
		}
		c.upsert(args[0].Value, args[1].Value)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("stubpg: unsupported exec %q", query)
}

// QueryContext implements driver.QueryerContext for the payload lookup.
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Queries = append(c.Queries, query)
	q := normalize(query)
	if !strings.HasPrefix(q, "select payload from collections where bucket") || len(args) != 1 {
		return nil, fmt.Errorf("stubpg: unsupported query %q", query)
	}
	bucket := asString(args[0].Value)
	rows := &payloadRows{}
	for _, row := range c.Tables["collections"] {
		if row["bucket"] == bucket {
			rows.values = append(rows.values, row["payload"])
		}
	}
	return rows, nil
}

func (c *StubConn) upsert(bucket, payload any) {
	key := asString(bucket)
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = append([]byte(nil), v...)
	case string:
		data = []byte(v)
	}
	rows := c.Tables["collections"]
	for _, row := range rows {
		if row["bucket"] == key {
			row["payload"] = data
			return
		}
	}
	c.Tables["collections"] = append(rows, map[string]any{"bucket": key, "payload": data})
}

func normalize(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	default:
		return fmt.Sprint(v)
	}
}

type stubTx struct{ conn *StubConn }

func (t stubTx) Commit() error {
	if t.conn.FailCommit {
		return errors.New("stubpg: commit failed")
	}
	return nil
}

// Rollback is a no-op; statements apply immediately.
func (t stubTx) Rollback() error { return nil }

type payloadRows struct {
	values []any
	next   int
}

func (r *payloadRows) Columns() []string { return []string{"payload"} }

func (r *payloadRows) Close() error { return nil }

func (r *payloadRows) Next(dest []driver.Value) error {
	if r.next >= len(r.values) {
		return io.EOF
	}
	dest[0] = r.values[r.next]
	r.next++
	return nil
}
