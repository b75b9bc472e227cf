package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrSessionClosed is returned by statements issued on a closed session.
var ErrSessionClosed = errors.New("session is closed")

// SessionFactory builds units of work bound to one engine. Entities created
// through a session stay readable after commit; there is no attribute
// expiry to worry about.
type SessionFactory struct {
	engine *Engine
}

// Engine returns the connection factory the sessions are bound to.
func (f *SessionFactory) Engine() *Engine {
	return f.engine
}

// Session returns a fresh unit of work. Connection acquisition is lazy, so
// errors surface on the first statement.
func (f *SessionFactory) Session() *Session {
	return &Session{engine: f.engine}
}

// validate probes the factory by acquiring and releasing an underlying
// connection.
func (f *SessionFactory) validate(ctx context.Context) bool {
	conn, err := f.engine.db.Conn(ctx)
	if err != nil {
		return false
	}
	if err := conn.Close(); err != nil {
		return false
	}
	return true
}

// Session is a transaction-scoped unit of work over a single pooled
// connection. A transaction begins lazily on the first statement and spans
// until Commit, Rollback or Close. A session is owned by exactly one
// goroutine at a time; it is not safe for concurrent use.
type Session struct {
	engine *Engine
	conn   *sql.Conn
	tx     *sql.Tx
	closed bool
}

func (s *Session) begin(ctx context.Context) (*sql.Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	if s.conn == nil {
		conn, err := s.engine.db.Conn(ctx)
		if err != nil {
			return nil, err
		}
		s.conn = conn
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.tx = tx
	return tx, nil
}

// Exec runs a statement inside the session's transaction.
func (s *Session) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx.ExecContext(ctx, query, args...)
}

// Query runs a query inside the session's transaction.
func (s *Session) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx.QueryContext(ctx, query, args...)
}

// Commit commits the open transaction, if any. The session stays usable; a
// new transaction begins on the next statement.
func (s *Session) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit()
}

// Flush is the commit=false path of the entity operations: pending
// statements are already visible inside the open transaction, so there is
// nothing to send. It exists to keep call sites explicit about intent.
func (s *Session) Flush() error {
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}

// Rollback aborts the open transaction, if any.
func (s *Session) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	return tx.Rollback()
}

// Close rolls back any open transaction and releases the connection back to
// the pool. Safe to call more than once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.tx != nil {
		if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			log.Error().Err(err).Msg("Failed to roll back transaction on session close")
		}
		s.tx = nil
	}
	if s.conn != nil {
		conn := s.conn
		s.conn = nil
		return conn.Close()
	}
	return nil
}
