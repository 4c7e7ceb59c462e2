package sqlite

import (
	"path/filepath"
	"testing"
)

func TestDriverInfo(t *testing.T) {
	info := GetInfo()

	if info.DriverName != DriverName() {
		t.Errorf("DriverName mismatch: info=%s, func=%s", info.DriverName, DriverName())
	}
	if info.DriverType != DriverType() {
		t.Errorf("DriverType mismatch: info=%s, func=%s", info.DriverType, DriverType())
	}
	if info.IsCGO != IsCGO() {
		t.Errorf("IsCGO mismatch: info=%v, func=%v", info.IsCGO, IsCGO())
	}
	if info.Package == "" {
		t.Error("Package should not be empty")
	}
}

func TestDriverTypeConsistency(t *testing.T) {
	switch DriverType() {
	case "purego":
		if IsCGO() || DriverName() != "sqlite" {
			t.Errorf("purego driver reports IsCGO=%v name=%s", IsCGO(), DriverName())
		}
	case "cgo":
		if !IsCGO() || DriverName() != "sqlite3" {
			t.Errorf("cgo driver reports IsCGO=%v name=%s", IsCGO(), DriverName())
		}
	default:
		t.Errorf("unknown driver type: %s", DriverType())
	}
}

func TestOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO test (value) VALUES (?)`, "hello"); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	var value string
	if err := db.QueryRow(`SELECT value FROM test WHERE id = 1`).Scan(&value); err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if value != "hello" {
		t.Errorf("expected 'hello', got '%s'", value)
	}
}

func TestOpenReadOnly(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db := MustOpen(dbPath)
	if _, err := db.Exec(`CREATE TABLE test (id INTEGER PRIMARY KEY, value TEXT)`); err != nil {
		t.Fatalf("failed to create table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO test (value) VALUES (?)`, "readonly"); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	db.Close()

	rodb, err := OpenReadOnly(dbPath)
	if err != nil {
		t.Fatalf("failed to open read-only: %v", err)
	}
	defer rodb.Close()

	var value string
	if err := rodb.QueryRow(`SELECT value FROM test WHERE id = 1`).Scan(&value); err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if value != "readonly" {
		t.Errorf("expected 'readonly', got '%s'", value)
	}
	if _, err := rodb.Exec(`INSERT INTO test (value) VALUES (?)`, "nope"); err == nil {
		t.Error("write to a read-only database succeeded")
	}
}

func TestOpenMemory(t *testing.T) {
	db, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory() error: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (v TEXT)`); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT count(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("table not visible on the pooled connection: %v", err)
	}
}

func TestWithParam(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"/tmp/a.db", "file:/tmp/a.db?mode=ro"},
		{"file:/tmp/a.db?cache=shared", "file:/tmp/a.db?cache=shared&mode=ro"},
	}
	for _, tt := range tests {
		if got := withParam(tt.dsn, "mode=ro"); got != tt.want {
			t.Errorf("withParam(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
