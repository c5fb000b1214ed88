package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// DevMode switches migration loading from the compiled-in copy to the source
// tree, so schema work does not require a rebuild per edit.
var DevMode = false

//go:embed migrations
var migrationsFS embed.FS

// devMigrationPaths are tried in order when DevMode is set, covering runs
// from the repo root and from package test directories.
var devMigrationPaths = []string{
	"internal/db/migrations",
	"migrations",
	"../../internal/db/migrations",
}

// getMigrationsFS returns the migrations filesystem rooted at the directory
// containing the .sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		for _, dir := range devMigrationPaths {
			if info, err := os.Stat(dir); err == nil && info.IsDir() {
				return os.DirFS(dir), nil
			}
		}
		return nil, fmt.Errorf("dev mode: no migrations directory found (tried %v)", devMigrationPaths)
	}
	return fs.Sub(migrationsFS, "migrations")
}

// MigrationsFS exposes the migrations filesystem to callers outside the
// package (the daemon's startup check and the migrate CLI test helpers).
func MigrationsFS() (fs.FS, error) {
	return getMigrationsFS()
}
