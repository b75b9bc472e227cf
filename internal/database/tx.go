package database

import (
	"context"
	"database/sql/driver"
	"errors"

	"github.com/rs/zerolog/log"
)

// DefaultRetryCount is the number of attempts Transactional makes before
// giving up on transient connection failures.
const DefaultRetryCount = 3

// TxOptions configures Transactional.
type TxOptions struct {
	// Database is the logical database name; empty means DefaultDatabase.
	Database string
	// RetryCount caps the attempts on transient disconnection. Values below
	// one fall back to DefaultRetryCount.
	RetryCount int
}

// Transactional runs fn with a session obtained from the session registry.
// fn is responsible for committing its own work; on error the session is
// rolled back and, unless the failure was a transient disconnection, the
// error is returned as-is. Transient disconnections (a stale pooled
// connection, a pool inherited across a fork) get a fresh session and a
// re-run of fn, up to RetryCount attempts. The session Transactional
// created is closed on every exit path.
func (r *Registry) Transactional(ctx context.Context, opts TxOptions, fn func(*Session) error) error {
	retries := opts.RetryCount
	if retries < 1 {
		retries = DefaultRetryCount
	}

	var err error
	for attempt := 1; attempt <= retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		sess := r.SessionFactory(opts.Database).Session()
		err = fn(sess)
		if err == nil {
			return sess.Close()
		}

		if rbErr := sess.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to roll back session")
		}
		if closeErr := sess.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close session")
		}

		if !isTransient(err) {
			return err
		}
		log.Warn().
			Err(err).
			Str("database", opts.Database).
			Int("attempt", attempt).
			Msg("Transient connection failure, retrying with a fresh session")
	}
	return err
}

// WithSession scopes a session to fn without retry, for call sites that
// manage their own failure handling. On error the session is rolled back
// before the error propagates; the session never outlives the call.
func (r *Registry) WithSession(ctx context.Context, database string, fn func(*Session) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sess := r.SessionFactory(database).Session()
	defer func() {
		if err := sess.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close session")
		}
	}()

	if err := fn(sess); err != nil {
		if rbErr := sess.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to roll back session")
		}
		return err
	}
	return nil
}

func isTransient(err error) bool {
	return errors.Is(err, ErrDisconnected) || errors.Is(err, driver.ErrBadConn)
}
