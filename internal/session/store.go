package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

const (
	keyToken    = "authToken"
	keyUsername = "username"
)

// ErrNotLoggedIn is returned by Token and Username when nothing is stored.
var ErrNotLoggedIn = errors.New("not logged in")

// Store is a Pebble-backed session store.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if needed) the session database under dir.
func Open(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("session directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	db, err := pebble.Open(filepath.Join(filepath.Clean(dir), "session"), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	return &Store{db: db}, nil
}

// Token returns the stored bearer token.
func (s *Store) Token() (string, error) {
	return s.get(keyToken)
}

// Username returns the stored username.
func (s *Store) Username() (string, error) {
	return s.get(keyUsername)
}

// Authenticated reports whether both a token and a username are stored.
func (s *Store) Authenticated() bool {
	if _, err := s.Token(); err != nil {
		return false
	}
	_, err := s.Username()
	return err == nil
}

// Save stores the token and username atomically.
func (s *Store) Save(token, username string) error {
	if token == "" || username == "" {
		return errors.New("token and username are required")
	}

	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Set([]byte(keyToken), []byte(token), nil); err != nil {
		return fmt.Errorf("stage token: %w", err)
	}
	if err := b.Set([]byte(keyUsername), []byte(username), nil); err != nil {
		return fmt.Errorf("stage username: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.Delete([]byte(keyToken), nil); err != nil {
		return fmt.Errorf("stage token delete: %w", err)
	}
	if err := b.Delete([]byte(keyUsername), nil); err != nil {
		return fmt.Errorf("stage username delete: %w", err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) get(key string) (string, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", ErrNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	defer closer.Close()

	if len(val) == 0 {
		return "", ErrNotLoggedIn
	}
	// val is only valid until closer.Close.
	return string(val), nil
}
