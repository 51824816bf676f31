package db

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"khamriver-server/internal/config"
)

func TestBuildDSN(t *testing.T) {
	t.Run("explicit DSN wins", func(t *testing.T) {
		got, err := buildDSN(config.Config{DBDSN: "file:x.db?mode=ro", SQLitePath: "ignored.db"})
		if err != nil {
			t.Fatalf("buildDSN: %v", err)
		}
		if got != "file:x.db?mode=ro" {
			t.Errorf("dsn = %q", got)
		}
	})

	t.Run("plain path gets pragmas and directory", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "app.db")
		got, err := buildDSN(config.Config{SQLitePath: path})
		if err != nil {
			t.Fatalf("buildDSN: %v", err)
		}
		if !strings.HasPrefix(got, "file:"+path+"?") || !strings.Contains(got, "_foreign_keys=on") {
			t.Errorf("dsn = %q", got)
		}
	})

	t.Run("file prefix with query appends", func(t *testing.T) {
		path := "file:" + filepath.Join(t.TempDir(), "app.db") + "?cache=shared"
		got, err := buildDSN(config.Config{SQLitePath: path})
		if err != nil {
			t.Fatalf("buildDSN: %v", err)
		}
		if !strings.HasPrefix(got, path+"&_foreign_keys=on") {
			t.Errorf("dsn = %q", got)
		}
	})
}

func TestOpen_sqlite(t *testing.T) {
	for _, logSQL := range []bool{false, true} {
		cfg := config.Config{
			DBDriver:       "sqlite3",
			SQLitePath:     filepath.Join(t.TempDir(), "app.db"),
			DBMaxOpenConns: 1,
			DBMaxIdleConns: 1,
			DBLogSQL:       logSQL,
		}
		conn, err := Open(cfg)
		if err != nil {
			t.Fatalf("Open(logSQL=%v): %v", logSQL, err)
		}
		var fk int
		if err := conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
			t.Fatalf("pragma: %v", err)
		}
		if fk != 1 {
			t.Errorf("foreign_keys = %d, want 1", fk)
		}
		if err := Close(conn); err != nil {
			t.Errorf("Close: %v", err)
		}
	}
}

func TestClose_nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Errorf("Close(nil) = %v, want nil", err)
	}
}

func TestTimeRoundTripKeepsOrder(t *testing.T) {
	a := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	b := a.Add(1500 * time.Millisecond)
	fa, fb := FormatTime(a), FormatTime(b)
	if !(fa < fb) {
		t.Errorf("%q should sort before %q", fa, fb)
	}
	got, err := ParseTime(fb)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !got.Equal(b) {
		t.Errorf("ParseTime = %v, want %v", got, b)
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Error("ParseTime(garbage) = nil error")
	}
}
