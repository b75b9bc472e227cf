package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
)

// ErrDisconnected is reported when a pooled connection is checked out by a
// process other than the one that opened it. The pool discards the
// connection and dials a fresh one on the next use.
var ErrDisconnected = errors.New("connection checked out in foreign process")

// Engine owns the connection pool for one logical database.
type Engine struct {
	name string
	db   *sql.DB
}

func newEngine(name, dsn string, poolSize int, poolRecycle time.Duration, pid func() int) *Engine {
	connector := &forkSafeConnector{dsn: dsn, drv: &sqlite.Driver{}, pid: pid}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(poolRecycle)

	log.Debug().
		Str("database", name).
		Int("pool_size", poolSize).
		Dur("pool_recycle", poolRecycle).
		Msg("Database engine created")

	return &Engine{name: name, db: db}
}

// Name returns the logical database name the engine was built for.
func (e *Engine) Name() string {
	return e.name
}

// DB exposes the pooled handle for migrations and maintenance statements.
func (e *Engine) DB() *sql.DB {
	return e.db
}

// Ping verifies a connection can be obtained from the pool.
func (e *Engine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

// Close shuts down the pool.
func (e *Engine) Close() error {
	return e.db.Close()
}

// connRecord tracks one physical connection together with the identifier of
// the process that opened it.
type connRecord struct {
	conn driver.Conn
	pid  int
}

// checkout validates the record against the process asking for the
// connection. A mismatch means the pool was inherited across a process
// fork; the physical connection is nulled out so the pool can never hand it
// back, and the caller gets a disconnection error.
func (r *connRecord) checkout(pid int) error {
	if r.pid != pid {
		r.conn = nil
		return fmt.Errorf("%w: record belongs to pid %d, checked out in pid %d", ErrDisconnected, r.pid, pid)
	}
	return nil
}

// forkSafeConnector opens SQLite connections and stamps every connection
// record with the creating process identifier. The pid func is injectable
// for tests.
type forkSafeConnector struct {
	dsn string
	drv driver.Driver
	pid func() int
}

func (c *forkSafeConnector) Connect(context.Context) (driver.Conn, error) {
	conn, err := c.drv.Open(c.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	// SQLite pragmas apply per connection. Foreign keys must be on for
	// ON DELETE CASCADE to work; WAL allows concurrent readers.
	if execer, ok := conn.(driver.ExecerContext); ok {
		for _, pragma := range []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 5000",
		} {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				conn.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	}
	return &pooledConn{rec: &connRecord{conn: conn, pid: c.pid()}, pid: c.pid}, nil
}

func (c *forkSafeConnector) Driver() driver.Driver {
	return c.drv
}

// pooledConn wraps a physical connection and enforces the fork-safety stamp
// at every pool checkout.
type pooledConn struct {
	rec *connRecord
	pid func() int
}

var (
	_ driver.Conn               = (*pooledConn)(nil)
	_ driver.ConnBeginTx        = (*pooledConn)(nil)
	_ driver.ConnPrepareContext = (*pooledConn)(nil)
	_ driver.ExecerContext      = (*pooledConn)(nil)
	_ driver.QueryerContext     = (*pooledConn)(nil)
	_ driver.SessionResetter    = (*pooledConn)(nil)
	_ driver.Validator          = (*pooledConn)(nil)
)

func (c *pooledConn) base() (driver.Conn, error) {
	if c.rec.conn == nil {
		return nil, driver.ErrBadConn
	}
	return c.rec.conn, nil
}

// ResetSession runs when database/sql pulls the connection out of the idle
// pool. This is the checkout hook: a pid mismatch discards the connection.
func (c *pooledConn) ResetSession(ctx context.Context) error {
	if err := c.rec.checkout(c.pid()); err != nil {
		log.Warn().Err(err).Msg("Discarding pooled connection created by another process")
		return driver.ErrBadConn
	}
	if r, ok := c.rec.conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *pooledConn) IsValid() bool {
	if c.rec.conn == nil || c.rec.pid != c.pid() {
		return false
	}
	if v, ok := c.rec.conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

func (c *pooledConn) Prepare(query string) (driver.Stmt, error) {
	conn, err := c.base()
	if err != nil {
		return nil, err
	}
	return conn.Prepare(query)
}

func (c *pooledConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	conn, err := c.base()
	if err != nil {
		return nil, err
	}
	if p, ok := conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	return conn.Prepare(query)
}

func (c *pooledConn) Begin() (driver.Tx, error) {
	conn, err := c.base()
	if err != nil {
		return nil, err
	}
	return conn.Begin() //nolint:staticcheck // driver.Conn interface method
}

func (c *pooledConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	conn, err := c.base()
	if err != nil {
		return nil, err
	}
	if b, ok := conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	return conn.Begin() //nolint:staticcheck // fallback for drivers without BeginTx
}

func (c *pooledConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	conn, err := c.base()
	if err != nil {
		return nil, err
	}
	if e, ok := conn.(driver.ExecerContext); ok {
		return e.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *pooledConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	conn, err := c.base()
	if err != nil {
		return nil, err
	}
	if q, ok := conn.(driver.QueryerContext); ok {
		return q.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *pooledConn) Ping(ctx context.Context) error {
	conn, err := c.base()
	if err != nil {
		return err
	}
	if p, ok := conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *pooledConn) Close() error {
	conn := c.rec.conn
	c.rec.conn = nil
	if conn == nil {
		return nil
	}
	return conn.Close()
}
