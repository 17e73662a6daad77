package version

import "testing"

func TestString(t *testing.T) {
	Version, Commit, BuildTime = "1.2.3", "abc123", "2024-01-15T12:00:00Z"
	defer func() { Version, Commit, BuildTime = "dev", "unknown", "unknown" }()

	if got := String(); got != "1.2.3 (abc123) built 2024-01-15T12:00:00Z" {
		t.Errorf("String() = %q", got)
	}
	if got := UserAgent(); got != "roomchat/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}
