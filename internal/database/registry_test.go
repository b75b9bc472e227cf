package database

import (
	"path/filepath"
	"testing"
	"time"
)

func TestEngineCachedPerName(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "test.db"), Options{})
	t.Cleanup(func() { r.Close() })

	first := r.Engine("local", Options{PoolSize: 3, PoolRecycle: time.Minute})
	second := r.Engine("local", Options{PoolSize: 99, PoolRecycle: time.Second})
	if first != second {
		t.Fatal("expected the cached engine regardless of options")
	}

	other := r.Engine("analytics")
	if other == first {
		t.Fatal("expected a distinct engine per logical name")
	}
}

func TestEmptyNameMeansDefaultDatabase(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "test.db"), Options{})
	t.Cleanup(func() { r.Close() })

	if r.Engine("") != r.Engine(DefaultDatabase) {
		t.Fatal("empty name must map to the default database")
	}
	if r.SessionFactory("") != r.SessionFactory(DefaultDatabase) {
		t.Fatal("empty name must map to the default session factory")
	}
}

func TestSessionFactoryCachedWhileAlive(t *testing.T) {
	r := testRegistry(t)

	first := r.SessionFactory(DefaultDatabase)
	second := r.SessionFactory(DefaultDatabase)
	if first != second {
		t.Fatal("expected the cached factory while the engine is alive")
	}
}

func TestSessionFactoryRebuiltWhenDead(t *testing.T) {
	r := testRegistry(t)

	first := r.SessionFactory(DefaultDatabase)
	// Kill the engine underneath the cached factory.
	if err := first.Engine().Close(); err != nil {
		t.Fatalf("failed to close engine: %v", err)
	}

	second := r.SessionFactory(DefaultDatabase)
	if second == first {
		t.Fatal("expected a rebuilt factory after the liveness probe failed")
	}
}

func TestRegistryCloseShutsDownEngines(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "test.db"), Options{})
	engine := r.Engine(DefaultDatabase)

	if err := r.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := engine.DB().Ping(); err == nil {
		t.Fatal("expected the pool to be closed")
	}
}
