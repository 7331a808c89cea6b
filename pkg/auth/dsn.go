// Package auth stores the PostgreSQL connection string outside of the config
// file, in the OS keychain when one is available.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "wilson"
	keyringUser    = "postgres_dsn"
	dsnFileName    = "postgres_dsn"
	fileMode       = 0600
)

// ErrDSNNotFound is returned when no connection string was saved.
var ErrDSNNotFound = errors.New("postgres dsn not found")

// SaveDSN stores dsn in the OS keychain, falling back to a file in dir.
func SaveDSN(dir, dsn string) error {
	if dsn == "" {
		return errors.New("dsn required")
	}

	if err := keyring.Set(keyringService, keyringUser, dsn); err != nil {
		slog.Warn("keychain unavailable, falling back to file", "error", err)
		return saveDSNFile(dir, dsn)
	}

	// clean up the file left by an earlier fallback
	if dir != "" {
		os.Remove(filepath.Join(dir, dsnFileName))
	}
	return nil
}

// GetDSN returns the saved dsn. A file saved while the keychain was
// unavailable is migrated into it.
func GetDSN(dir string) (string, error) {
	dsn, err := keyring.Get(keyringService, keyringUser)
	if err == nil && dsn != "" {
		return dsn, nil
	}

	dsn, err = getDSNFile(dir)
	if err != nil {
		return "", err
	}

	if migrateErr := keyring.Set(keyringService, keyringUser, dsn); migrateErr == nil {
		slog.Info("migrated postgres dsn from file to OS keychain")
		os.Remove(filepath.Join(dir, dsnFileName))
	}

	return dsn, nil
}

// DeleteDSN removes the saved dsn from the keychain and dir.
func DeleteDSN(dir string) error {
	if err := keyring.Delete(keyringService, keyringUser); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug("keychain delete failed", "error", err)
	}
	if dir == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(dir, dsnFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing dsn file: %w", err)
	}
	return nil
}

func saveDSNFile(dir, dsn string) error {
	if dir == "" {
		return errors.New("dsn directory required")
	}
	return os.WriteFile(filepath.Join(dir, dsnFileName), []byte(dsn), fileMode)
}

func getDSNFile(dir string) (string, error) {
	if dir == "" {
		return "", ErrDSNNotFound
	}
	path := filepath.Join(dir, dsnFileName)
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrDSNNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading dsn file %s: %w", path, err)
	}
	dsn := strings.TrimSpace(string(b))
	if dsn == "" {
		return "", ErrDSNNotFound
	}
	return dsn, nil
}
