package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/roomchat/internal/config"
	"github.com/rickgao/roomchat/internal/stomp"
)

func TestConnectionConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.BrokerURL = "http://chat.example.com/ws-chat"
	cfg.Server.Transport = "websocket"
	cfg.Connection.HeartbeatOutgoing = -1
	cfg.Connection.HeartbeatIncoming = 2 * time.Second
	cfg.Connection.MaxReconnectAttempts = 7

	got := connectionConfig(cfg)

	if got.BrokerURL != "http://chat.example.com/ws-chat" {
		t.Errorf("BrokerURL = %q", got.BrokerURL)
	}
	if got.Transport != stomp.TransportWebSocket {
		t.Errorf("Transport = %q", got.Transport)
	}
	if got.HeartbeatOutgoing != 0 {
		t.Errorf("HeartbeatOutgoing = %v, want 0 for a negative setting", got.HeartbeatOutgoing)
	}
	if got.HeartbeatIncoming != 2*time.Second {
		t.Errorf("HeartbeatIncoming = %v", got.HeartbeatIncoming)
	}
	if got.MaxReconnectAttempts != 7 {
		t.Errorf("MaxReconnectAttempts = %d", got.MaxReconnectAttempts)
	}
	if got.ReconnectBaseDelay != config.DefaultReconnectBaseDelay {
		t.Errorf("ReconnectBaseDelay = %v", got.ReconnectBaseDelay)
	}
	if got.InboundBufferSize != config.DefaultBufferSize {
		t.Errorf("InboundBufferSize = %d", got.InboundBufferSize)
	}
}

func TestSetup(t *testing.T) {
	t.Run("missing default config falls back", func(t *testing.T) {
		a := &app{configPath: filepath.Join(t.TempDir(), "config.yaml")}
		if err := a.setup(false); err != nil {
			t.Fatalf("setup failed: %v", err)
		}
		if a.cfg.Server.RestURL != config.DefaultRestURL {
			t.Errorf("RestURL = %q", a.cfg.Server.RestURL)
		}
	})

	t.Run("missing explicit config fails", func(t *testing.T) {
		a := &app{configPath: filepath.Join(t.TempDir(), "config.yaml")}
		if err := a.setup(true); err == nil {
			t.Error("setup should fail for an explicit missing config")
		}
	})

	t.Run("log level override", func(t *testing.T) {
		a := &app{configPath: filepath.Join(t.TempDir(), "config.yaml"), logLevel: "loud"}
		if err := a.setup(false); err == nil {
			t.Error("setup should reject an unknown log level")
		}
	})
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	want := []string{"signup", "login", "logout", "whoami", "create-room", "join-room", "chat", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

// chatServer fakes the REST API and records the rooms it was asked about.
func chatServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/User/login":
			w.Write([]byte("tok-alice"))
		case "/User/signup":
			w.Write([]byte(`{"message":"User registered successfully"}`))
		case "/room/create-room":
			if r.Header.Get("Authorization") != "Bearer tok-alice" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"message":"Room created"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func runCLI(t *testing.T, configPath, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", configPath, "--log-level", "error"}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCLI_SessionFlow(t *testing.T) {
	server := chatServer(t)
	defer server.Close()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	yaml := fmt.Sprintf("server:\n  rest_url: %s\n  max_retries: 1\nsession:\n  data_dir: %s\n", server.URL, filepath.Join(dir, "data"))
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	out, err := runCLI(t, configPath, "", "whoami")
	if err != nil || !strings.Contains(out, "not logged in") {
		t.Fatalf("whoami before login = %q, %v", out, err)
	}

	if _, err := runCLI(t, configPath, "", "create-room", "R1"); err == nil {
		t.Error("create-room should require a session")
	}

	out, err = runCLI(t, configPath, "", "signup", "alice", "--email", "alice@example.com", "--password", "pw")
	if err != nil || !strings.Contains(out, "User registered successfully") {
		t.Fatalf("signup = %q, %v", out, err)
	}

	out, err = runCLI(t, configPath, "pw\n", "login", "alice")
	if err != nil || !strings.Contains(out, "logged in as alice") {
		t.Fatalf("login = %q, %v", out, err)
	}

	out, err = runCLI(t, configPath, "", "whoami")
	if err != nil || strings.TrimSpace(out) != "alice" {
		t.Fatalf("whoami after login = %q, %v", out, err)
	}

	out, err = runCLI(t, configPath, "", "create-room", "R1")
	if err != nil || !strings.Contains(out, "Room created") {
		t.Fatalf("create-room = %q, %v", out, err)
	}

	if _, err := runCLI(t, configPath, "", "logout"); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	out, _ = runCLI(t, configPath, "", "whoami")
	if !strings.Contains(out, "not logged in") {
		t.Errorf("whoami after logout = %q", out)
	}
}
