// ABOUTME: Point-in-time database backups using VACUUM INTO
// ABOUTME: Backups are named <file>.bak.<YYYYMMDDHHMMSS> and integrity-checked after writing

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const backupStampLayout = "20060102150405"

// Backup writes a consistent snapshot of the database into dir, or next to
// the database file when dir is empty, and returns the snapshot path.
// VACUUM INTO is safe while the database is in WAL mode.
func (s *SQLiteStore) Backup(ctx context.Context, dir string) (string, error) {
	if s.path == "" {
		return "", invalidInput("path", "in-memory database cannot be backed up")
	}
	if dir == "" {
		dir = filepath.Dir(s.path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}

	name := fmt.Sprintf("%s.bak.%s", filepath.Base(s.path), time.Now().UTC().Format(backupStampLayout))
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("backup already exists: %s", dest)
	}

	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return "", dbError("writing backup", err)
	}
	if err := verifyBackup(ctx, s.driver, dest); err != nil {
		return "", err
	}

	s.logger.Info("created backup", "path", dest)
	return dest, nil
}

// verifyBackup runs integrity_check against a snapshot opened read-only.
func verifyBackup(ctx context.Context, driver, path string) error {
	db, err := sql.Open(driver, fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return dbError("opening backup", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return dbError("checking backup integrity", err)
	}
	if result != "ok" {
		return dbError("checking backup integrity", fmt.Errorf("integrity check failed: %s", result))
	}
	return nil
}
