//go:build sqlite_cgo
// +build sqlite_cgo

package storage

// This file is compiled when building with CGO and the sqlite_cgo tag.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...
//
// Driver used: github.com/mattn/go-sqlite3

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)

// driverDSN adds a busy timeout so a second process (a CLI ingest next to a
// running pipeline) waits for the write lock instead of failing
func driverDSN(path string) string {
	if path == ":memory:" {
		return path
	}
	return path + "?_busy_timeout=" + busyTimeoutMs
}
