// Package sqlite selects the SQLite driver backing the document store.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite, driver "sqlite"
//   - CGO (-tags cgo_sqlite): mattn/go-sqlite3, driver "sqlite3"
//
// Use Open instead of sql.Open so the registered driver name always matches
// the build.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
)

// DriverName returns the SQL driver name to use.
func DriverName() string {
	return driverName
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for
// modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// IsCGO returns true if the CGO implementation is being used.
func IsCGO() bool {
	return driverType == "cgo"
}

// Open opens a SQLite database using the driver of this build.
func Open(dataSourceName string) (*sql.DB, error) {
	return sql.Open(driverName, dataSourceName)
}

// OpenReadOnly opens a SQLite database in read-only mode.
func OpenReadOnly(path string) (*sql.DB, error) {
	return Open(withParam(path, "mode=ro"))
}

// OpenMemory opens a private in-memory database. The pool is limited to one
// connection since every connection would otherwise see its own database.
func OpenMemory() (*sql.DB, error) {
	db, err := Open(":memory:")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// MustOpen opens a SQLite database and panics on error.
func MustOpen(dataSourceName string) *sql.DB {
	db, err := Open(dataSourceName)
	if err != nil {
		panic(fmt.Sprintf("sqlite: failed to open %s: %v", dataSourceName, err))
	}
	return db
}

func withParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return "file:" + dsn + "?" + param
}

// Info contains information about the SQLite driver configuration.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      IsCGO(),
		Package:    driverPackage,
	}
}
