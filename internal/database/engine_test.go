package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"testing"
)

// stubConn is a minimal driver.Conn for checkout tests.
type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("not implemented") }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return nil, errors.New("not implemented") }

func TestCheckoutForeignProcessDiscardsConnection(t *testing.T) {
	rec := &connRecord{conn: stubConn{}, pid: 111}

	err := rec.checkout(222)
	if err == nil {
		t.Fatal("expected a disconnection error for a foreign pid")
	}
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("expected ErrDisconnected, got %v", err)
	}
	if rec.conn != nil {
		t.Fatal("expected the physical connection to be nulled out")
	}
}

func TestCheckoutSameProcessKeepsConnection(t *testing.T) {
	rec := &connRecord{conn: stubConn{}, pid: 111}

	if err := rec.checkout(111); err != nil {
		t.Fatalf("checkout in the owning pid must succeed, got %v", err)
	}
	if rec.conn == nil {
		t.Fatal("connection must survive a same-pid checkout")
	}
}

func TestResetSessionDiscardsForeignConnection(t *testing.T) {
	pid := 111
	conn := &pooledConn{
		rec: &connRecord{conn: stubConn{}, pid: 111},
		pid: func() int { return pid },
	}

	if err := conn.ResetSession(context.Background()); err != nil {
		t.Fatalf("same-pid reset must succeed, got %v", err)
	}

	pid = 222
	if err := conn.ResetSession(context.Background()); !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("expected driver.ErrBadConn so the pool discards the connection, got %v", err)
	}
	if conn.rec.conn != nil {
		t.Fatal("expected the physical connection to be nulled out")
	}
	if conn.IsValid() {
		t.Fatal("a discarded connection must not report valid")
	}
}

// TestPoolRecoversAfterFork simulates a fork: connections stamped under the
// parent pid must be discarded once the pid changes, and the pool must dial
// fresh ones transparently.
func TestPoolRecoversAfterFork(t *testing.T) {
	pid := 1000
	r := NewRegistry(filepath.Join(t.TempDir(), "test.db"), Options{})
	r.pid = func() int { return pid }
	t.Cleanup(func() { r.Close() })

	engine := r.Engine(DefaultDatabase)
	ctx := context.Background()
	if err := engine.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if _, err := engine.DB().ExecContext(ctx,
		"INSERT INTO taskschedule (name, task, cron) VALUES ('a', 'new_task', '* * * * *')"); err != nil {
		t.Fatalf("exec under parent pid failed: %v", err)
	}

	// "Fork": every pooled connection now carries a stale stamp.
	pid = 2000

	var count int
	if err := engine.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM taskschedule").Scan(&count); err != nil {
		t.Fatalf("query after fork failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row, got %d", count)
	}
}
