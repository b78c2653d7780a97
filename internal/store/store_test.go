package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/buruapp/buru-server/internal/content"
	"github.com/buruapp/buru-server/internal/domain"
)

const postgresDSNEnv = "BURU_TEST_POSTGRES_DSN"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(context.Background(), Config{
		Driver:       "sqlite",
		DSN:          dbPath,
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		ApplySchema:  true,
	}, testLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newPostgresStore opens the database named by BURU_TEST_POSTGRES_DSN with
// empty tables, or skips.
func newPostgresStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()
	s, err := Open(ctx, Config{Driver: "postgres", DSN: dsn, MaxOpenConns: 4, ApplySchema: true}, testLogger())
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `TRUNCATE images, tags, tag_counts CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachDialect runs fn against sqlite and, when configured, postgres.
func forEachDialect(t *testing.T, fn func(t *testing.T, s *Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("postgres", func(t *testing.T) { fn(t, newPostgresStore(t)) })
}

func testMeta(size int64, at time.Time) *domain.Metadata {
	return &domain.Metadata{
		Width:     10,
		Height:    20,
		Format:    "png",
		ColorType: "Rgba8",
		FileSize:  size,
		CreatedAt: at,
	}
}

// archive stores a synthetic image named by key and returns its hash.
func archive(t *testing.T, s *Store, key string, at time.Time, tags ...string) content.Hash {
	t.Helper()
	h := content.Sum([]byte(key))
	if _, err := s.ArchiveImage(context.Background(), ArchiveParams{
		Hash:     h,
		Metadata: testMeta(int64(len(key)), at),
		Tags:     tags,
	}); err != nil {
		t.Fatalf("ArchiveImage(%s): %v", key, err)
	}
	return h
}

func TestOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if s.Dialect().Name() != "sqlite" {
		t.Errorf("expected sqlite dialect, got %s", s.Dialect().Name())
	}

	var journalMode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatalf("query journal_mode: %v", err)
	}
	if journalMode != "wal" {
		t.Errorf("expected wal, got %s", journalMode)
	}

	// Pragmas come from the DSN, so every pooled connection has them.
	conns := make([]interface{ Close() error }, 0, 3)
	for i := range 3 {
		conn, err := s.db.Conn(ctx)
		if err != nil {
			t.Fatalf("conn %d: %v", i, err)
		}
		conns = append(conns, conn)
		var fk int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatalf("query foreign_keys: %v", err)
		}
		if fk != 1 {
			t.Errorf("conn %d: expected foreign_keys=1, got %d", i, fk)
		}
	}
	for _, c := range conns {
		c.Close()
	}

	for _, table := range []string{"images", "image_metadatas", "tags", "image_tags", "tag_counts"} {
		var name string
		err := s.db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql", DSN: "x"}, testLogger())
	if err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpen_SchemaIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	cfg := Config{Driver: "sqlite", DSN: dbPath, ApplySchema: true}
	for i := range 2 {
		s, err := Open(context.Background(), cfg, testLogger())
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		s.Close()
	}
}

func TestSqliteDSN(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/data/buru.db", "file:/data/buru.db?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"},
		{"file:x.db?mode=rwc", "file:x.db?mode=rwc&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"},
		{"file:x.db?_pragma=foreign_keys(1)", "file:x.db?_pragma=foreign_keys(1)"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
