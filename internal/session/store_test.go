package session

import (
	"errors"
	"testing"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestStore_Empty(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	if _, err := s.Token(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Token() error = %v, want ErrNotLoggedIn", err)
	}
	if _, err := s.Username(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("Username() error = %v, want ErrNotLoggedIn", err)
	}
	if s.Authenticated() {
		t.Error("empty store should not be authenticated")
	}
	if err := s.Clear(); err != nil {
		t.Errorf("Clear on empty store: %v", err)
	}
}

func TestStore_SaveAndClear(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	if err := s.Save("tok-1", "alice"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	token, err := s.Token()
	if err != nil || token != "tok-1" {
		t.Errorf("Token() = %q, %v; want tok-1", token, err)
	}
	user, err := s.Username()
	if err != nil || user != "alice" {
		t.Errorf("Username() = %q, %v; want alice", user, err)
	}
	if !s.Authenticated() {
		t.Error("store should be authenticated after Save")
	}

	if err := s.Save("tok-2", "bob"); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	if token, _ := s.Token(); token != "tok-2" {
		t.Errorf("Token() after overwrite = %q, want tok-2", token)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if s.Authenticated() {
		t.Error("store should not be authenticated after Clear")
	}
}

func TestStore_SaveRejectsEmpty(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	defer s.Close()

	tests := []struct{ token, user string }{
		{"", "alice"},
		{"tok", ""},
	}
	for _, tt := range tests {
		if err := s.Save(tt.token, tt.user); err == nil {
			t.Errorf("Save(%q, %q) should fail", tt.token, tt.user)
		}
	}
}

func TestStore_Persists(t *testing.T) {
	dir := t.TempDir()

	s := openTestStore(t, dir)
	if err := s.Save("tok", "alice"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s = openTestStore(t, dir)
	defer s.Close()

	if user, err := s.Username(); err != nil || user != "alice" {
		t.Errorf("Username() after reopen = %q, %v", user, err)
	}
}

func TestOpen_RequiresDir(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Error("Open(\"\") should fail")
	}
}
