//go:build sqlite_cgo

package storage

// Compiled when building with CGO and the sqlite_cgo tag. The FTS5 module of
// mattn/go-sqlite3 is only linked with the sqlite_fts5 tag, which the
// documents_fts table requires.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo,sqlite_fts5" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// transientDriverError reports whether err is a busy, locked or I/O failure
// of the driver that may clear up on its own
func transientDriverError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrProtocol:
		return true
	}
	return false
}
