package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/Clark-Hu/freelance-hub/internal/store"
	"github.com/Clark-Hu/freelance-hub/internal/testdb"
)

func TestNewAndHealthCheck(t *testing.T) {
	db := testdb.Start(t, "store_test")

	st, err := store.New(context.Background(), db.DSN, store.Options{
		MaxConns:               4,
		MinConns:               1,
		ConnTimeout:            5 * time.Second,
		StatementCacheCapacity: 16,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer st.Close()

	if err := st.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error: %v", err)
	}
	if st.Stats() == nil {
		t.Fatalf("Stats() returned nil")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testdb.Start(t, "store_migrate_test")

	if err := store.Migrate(db.DSN, nil); err != nil {
		t.Fatalf("second Migrate() error: %v", err)
	}

	var tables int
	err := db.Pool.QueryRow(context.Background(), `
        SELECT count(*) FROM information_schema.tables
        WHERE table_schema = 'public'
          AND table_name IN ('users', 'jobs', 'applications', 'milestones', 'ratings')
    `).Scan(&tables)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 5 {
		t.Fatalf("tables = %d, want 5", tables)
	}
}

func TestNilStore(t *testing.T) {
	var st *store.Store
	if err := st.HealthCheck(context.Background()); err == nil {
		t.Fatalf("expected error from nil store")
	}
	if st.Stats() != nil {
		t.Fatalf("expected nil stats from nil store")
	}
	st.Close()
}

func TestNewInvalidURL(t *testing.T) {
	if _, err := store.New(context.Background(), "://bad", store.Options{}); err == nil {
		t.Fatalf("expected parse error")
	}
}
