package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"weather-anomaly-server/internal/config"
)

func TestBuildDSN(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "explicit dsn wins",
			cfg:  config.Config{SQLiteDSN: "file::memory:?cache=shared", SQLitePath: "ignored.db"},
			want: "file::memory:?cache=shared",
		},
		{
			name: "plain path",
			cfg:  config.Config{SQLitePath: filepath.Join(dir, "a.db")},
			want: "file:" + filepath.Join(dir, "a.db") + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "file uri with query",
			cfg:  config.Config{SQLitePath: "file:" + filepath.Join(dir, "b.db") + "?mode=rwc"},
			want: "file:" + filepath.Join(dir, "b.db") + "?mode=rwc&_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildDSN(tt.cfg)
			if err != nil {
				t.Fatalf("buildDSN: %v", err)
			}
			if got != tt.want {
				t.Errorf("buildDSN = %q; want %q", got, tt.want)
			}
		})
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "anomaly.db")
	cfg := config.Config{
		SQLiteDriver:       "sqlite3",
		SQLitePath:         path,
		SQLiteMaxOpenConns: 1,
		SQLiteMaxIdleConns: 1,
	}

	conn, err := Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		if err := Close(conn); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	var mode string
	if err := conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if !strings.EqualFold(mode, "wal") {
		t.Errorf("journal_mode = %q; want wal", mode)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := config.Config{SQLiteDriver: "nope", SQLiteDSN: "whatever"}
	if _, err := Open(context.Background(), cfg, nil); err == nil {
		t.Fatal("Open with unknown driver = nil error")
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v", err)
	}
}
