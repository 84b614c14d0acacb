// Package migrations applies the embedded schema scripts in version order.
//
// Each applied script is recorded with a checksum of its contents. Opening a
// database whose recorded scripts no longer match the embedded ones, or one
// written by a newer build, fails instead of silently running on a schema the
// code does not understand.
package migrations

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strconv"
	"strings"

	"agentdesk/pkg/logger"
)

var (
	// ErrSchemaTooNew 数据库由更新的版本写入
	ErrSchemaTooNew = errors.New("migrations: database schema is newer than this build")
	// ErrChecksumMismatch 已执行的脚本内容被修改
	ErrChecksumMismatch = errors.New("migrations: applied script was modified")
)

// Script is one embedded migration.
type Script struct {
	Version  int
	Name     string
	Checksum string
	body     string
}

// Scripts returns the embedded scripts sorted by version.
func Scripts() ([]Script, error) {
	return load(FS)
}

// Run applies every script newer than the database's recorded version.
func Run(db *sql.DB) error {
	scripts, err := Scripts()
	if err != nil {
		return fmt.Errorf("load scripts: %w", err)
	}
	return apply(db, scripts)
}

// Version returns the highest applied version, or 0 for a fresh database.
func Version(db *sql.DB) (int, error) {
	if err := ensureTable(db); err != nil {
		return 0, err
	}
	var v int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}

func apply(db *sql.DB, scripts []Script) error {
	if err := ensureTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied, err := appliedChecksums(db)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}

	latest := 0
	if n := len(scripts); n > 0 {
		latest = scripts[n-1].Version
	}
	for v := range applied {
		if v > latest {
			return fmt.Errorf("%w: database at %d, build knows %d", ErrSchemaTooNew, v, latest)
		}
	}

	log := logger.Named("migrations")
	for _, s := range scripts {
		if sum, ok := applied[s.Version]; ok {
			if sum != s.Checksum {
				return fmt.Errorf("%w: %s", ErrChecksumMismatch, s.Name)
			}
			continue
		}
		if err := execScript(db, s); err != nil {
			return fmt.Errorf("apply %s: %w", s.Name, err)
		}
		log.Debug().Int("version", s.Version).Str("script", s.Name).Msg("Applied migration")
	}
	return nil
}

func ensureTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       TEXT NOT NULL,
		checksum   TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func appliedChecksums(db *sql.DB) (map[int]string, error) {
	rows, err := db.Query("SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			v   int
			sum string
		)
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		out[v] = sum
	}
	return out, rows.Err()
}

func execScript(db *sql.DB, s Script) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(s.body); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
		s.Version, s.Name, s.Checksum,
	); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// load reads NNN_name.sql files from the root of fsys's scripts directory.
func load(fsys fs.FS) ([]Script, error) {
	entries, err := fs.ReadDir(fsys, "scripts")
	if err != nil {
		return nil, err
	}

	var out []Script
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, _ := strings.Cut(e.Name(), "_")
		v, err := strconv.Atoi(prefix)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("script %s: name must start with a positive version", e.Name())
		}
		if prev, dup := seen[v]; dup {
			return nil, fmt.Errorf("scripts %s and %s share version %d", prev, e.Name(), v)
		}
		seen[v] = e.Name()

		body, err := fs.ReadFile(fsys, "scripts/"+e.Name())
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(body)
		out = append(out, Script{
			Version:  v,
			Name:     e.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			body:     string(body),
		})
	}

	slices.SortFunc(out, func(a, b Script) int { return a.Version - b.Version })
	return out, nil
}
