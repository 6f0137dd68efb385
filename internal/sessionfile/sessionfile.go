// Package sessionfile stores serialized MTProto session blobs on disk, one
// file per user. The blob format is opaque; it is written and read only by
// the Telegram client library. This package owns the paths and whole-file
// deletion so a session is never left half-removed.
package sessionfile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Store maps user IDs to session blob files under a dedicated directory.
type Store struct {
	dir string
}

// NewStore creates the session directory if needed and returns a Store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the session blob path for a user. The file may not exist yet;
// the client library creates it on first successful authorization.
func (s *Store) Path(userID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("user_%d.session", userID))
}

// Exists reports whether a session blob is present for the user.
func (s *Store) Exists(userID int64) bool {
	_, err := os.Stat(s.Path(userID))
	return err == nil
}

// Remove deletes the user's session blob. Missing files are not an error so
// fresh-start teardown stays idempotent.
func (s *Store) Remove(userID int64) error {
	path := s.Path(userID)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("remove session file: %w", err)
	}
	slog.Debug("session file removed", "user_id", userID, "path", path)
	return nil
}
