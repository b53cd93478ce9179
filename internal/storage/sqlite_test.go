package storage

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSQLiteConcurrentWriteSafety(t *testing.T) {
	store, err := NewSQLite(context.Background(), SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")})
	if err != nil {
		t.Fatalf("failed to create SQLite storage: %v", err)
	}
	defer store.Close()

	db := store.SQLiteDB()

	// Create two tables to simulate two sinks writing to one database concurrently.
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_records (id TEXT PRIMARY KEY, data TEXT)`)
	if err != nil {
		t.Fatalf("failed to create test_records table: %v", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS test_points (id TEXT PRIMARY KEY, data TEXT)`)
	if err != nil {
		t.Fatalf("failed to create test_points table: %v", err)
	}

	const goroutines = 10
	const insertsPerGoroutine = 50

	var wg sync.WaitGroup
	errs := make(chan error, goroutines*insertsPerGoroutine*2)

	// Half the goroutines write to test_records, half to test_points.
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			table := "test_records"
			if id%2 == 1 {
				table = "test_points"
			}
			for j := 0; j < insertsPerGoroutine; j++ {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				_, err := db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)`, table),
					fmt.Sprintf("%d-%d", id, j), "payload")
				cancel()
				if err != nil {
					errs <- fmt.Errorf("goroutine %d insert %d into %s: %w", id, j, table, err)
				}
			}
		}(i)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent write error: %v", err)
	}

	// Verify all rows were inserted.
	var recordCount, pointCount int
	if err := db.QueryRow("SELECT COUNT(*) FROM test_records").Scan(&recordCount); err != nil {
		t.Fatalf("failed to count record rows: %v", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM test_points").Scan(&pointCount); err != nil {
		t.Fatalf("failed to count point rows: %v", err)
	}

	expectedPerTable := (goroutines / 2) * insertsPerGoroutine
	if recordCount != expectedPerTable {
		t.Errorf("test_records: got %d rows, want %d", recordCount, expectedPerTable)
	}
	if pointCount != expectedPerTable {
		t.Errorf("test_points: got %d rows, want %d", pointCount, expectedPerTable)
	}
}

func TestNewSQLite_CreatesDirectoryAndEnablesWAL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "responselog.db")

	store, err := NewSQLite(context.Background(), SQLiteConfig{Path: path})
	if err != nil {
		t.Fatalf("NewSQLite() error = %v", err)
	}
	defer store.Close()

	if store.Type() != TypeSQLite {
		t.Errorf("Type() = %q, want %q", store.Type(), TypeSQLite)
	}
	if store.PostgreSQLPool() != nil || store.Redis() != nil {
		t.Error("expected nil accessors for other backends")
	}

	var mode string
	if err := store.SQLiteDB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode query failed: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

func TestSQLiteDSN(t *testing.T) {
	dsn := sqliteDSN("/var/lib/responselog.db")

	path, rawQuery, ok := strings.Cut(dsn, "?")
	if !ok || path != "/var/lib/responselog.db" {
		t.Fatalf("sqliteDSN() = %q, want path followed by pragmas", dsn)
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		t.Fatalf("pragmas do not parse: %v", err)
	}
	got := q["_pragma"]
	if len(got) != len(sqlitePragmas) {
		t.Fatalf("pragmas = %v, want %v", got, sqlitePragmas)
	}
	for i := range got {
		if got[i] != sqlitePragmas[i] {
			t.Errorf("pragma %d = %q, want %q", i, got[i], sqlitePragmas[i])
		}
	}
}
