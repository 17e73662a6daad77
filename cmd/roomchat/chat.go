package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/roomchat/internal/archive"
	"github.com/rickgao/roomchat/internal/config"
	"github.com/rickgao/roomchat/internal/connection"
	"github.com/rickgao/roomchat/internal/database"
	"github.com/rickgao/roomchat/internal/model"
	"github.com/rickgao/roomchat/internal/queue"
	"github.com/rickgao/roomchat/internal/render"
	"github.com/rickgao/roomchat/internal/session"
)

const quitCommand = "/quit"

var errQuit = errors.New("quit")

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <room>",
		Short: "Join a room and chat interactively (" + quitCommand + " to leave)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return a.withSession(func(store *session.Store) error {
				return a.chat(ctx, store, args[0], cmd.InOrStdin(), cmd.OutOrStdout())
			})
		},
	}
}

// syncWriter serializes terminal output from the delivery goroutine and the
// state listener.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (a *app) chat(ctx context.Context, store *session.Store, room string, in io.Reader, w io.Writer) error {
	username, err := store.Username()
	if err != nil {
		return err
	}
	out := &syncWriter{w: w}
	logger := a.logger.With("room", room)

	if _, err := a.apiClient(store).JoinRoom(ctx, room); err != nil {
		return fmt.Errorf("join room %s: %w", room, err)
	}

	var transcript *transcriptSink
	if a.cfg.Archive.Enabled {
		q, stopArchive, err := startArchive(ctx, a.cfg.Archive, logger)
		if err != nil {
			return err
		}
		defer stopArchive()
		transcript = &transcriptSink{q: q}
		// Runs before stopArchive so no push lands after the final flush.
		defer transcript.Detach()
	}

	r := render.New(username)
	handler := func(m model.ChatMessage) {
		if err := r.Print(out, m); err != nil {
			logger.Debug("print message", "error", err)
		}
		if transcript != nil {
			if m.RoomID == "" {
				m.RoomID = room
			}
			if !transcript.Push(m) {
				logger.Debug("transcript closed, message not archived", "id", m.ID)
			}
		}
	}

	failed := make(chan error, 1)
	var connectedOnce atomic.Bool
	rc := connection.New(connectionConfig(a.cfg),
		connection.WithTokenSource(store),
		connection.WithLogger(logger),
		connection.WithStateListener(func(sc connection.StateChange) {
			var wasConnected bool
			if sc.To == connection.StateConnected {
				wasConnected = connectedOnce.Swap(true)
			}
			if notice := stateNotice(sc, wasConnected); notice != "" {
				fmt.Fprintln(out, notice)
			}
			if sc.To == connection.StateFailed {
				select {
				case failed <- sc.Err:
				default:
				}
			}
		}),
	)
	defer rc.Close()

	fmt.Fprintf(out, "connecting to %s as %s...\n", room, username)
	if err := rc.Connect(ctx, room, username, handler); err != nil {
		return fmt.Errorf("connect to room %s: %w", room, err)
	}
	fmt.Fprintf(out, "joined %s, type %s to leave\n", room, quitCommand)

	lines := make(chan string)
	done := make(chan struct{})
	defer close(done)
	go readLines(in, lines, done)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return errQuit
				}
				line = strings.TrimSpace(line)
				switch {
				case line == "":
				case line == quitCommand:
					return errQuit
				case !rc.IsConnected():
					fmt.Fprintln(out, "-- not connected, message dropped --")
				default:
					rc.Send(line)
				}
			}
		}
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-failed:
			return fmt.Errorf("connection to room %s failed: %w", room, err)
		}
	})

	err = g.Wait()
	rc.Disconnect()
	if errors.Is(err, errQuit) {
		fmt.Fprintf(out, "left %s\n", room)
		return nil
	}
	return err
}

// stateNotice renders the terminal line for a state change, or "" when the
// change is not worth showing. wasConnected reports whether the session had
// reached Connected before this change.
func stateNotice(sc connection.StateChange, wasConnected bool) string {
	switch sc.To {
	case connection.StateReconnecting:
		if sc.From == connection.StateConnected {
			return fmt.Sprintf("-- connection lost, reconnecting (attempt %d) --", sc.Attempt)
		}
		return fmt.Sprintf("-- connect attempt %d failed, retrying --", sc.Attempt)
	case connection.StateConnected:
		if wasConnected {
			return "-- reconnected --"
		}
	}
	return ""
}

// transcriptSink feeds delivered messages to the archive queue until it is
// detached. Detach waits for an in-flight Push, so the writer's final flush
// sees every message that was accepted.
type transcriptSink struct {
	mu       sync.Mutex
	q        *queue.Queue[model.ChatMessage]
	detached bool
}

// Push queues m and reports whether it was accepted.
func (t *transcriptSink) Push(m model.ChatMessage) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.detached {
		return false
	}
	return t.q.Push(m)
}

func (t *transcriptSink) Detach() {
	t.mu.Lock()
	t.detached = true
	t.mu.Unlock()
}

// readLines forwards lines from r until EOF or until done is closed. A read
// blocked on a terminal is abandoned; the process exits right after.
func readLines(r io.Reader, lines chan<- string, done <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-done:
			return
		}
	}
}

// startArchive connects the transcript database and starts a writer fed by
// the returned queue. stop flushes what is queued and closes the pool.
func startArchive(ctx context.Context, cfg config.ArchiveConfig, logger *slog.Logger) (*queue.Queue[model.ChatMessage], func(), error) {
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect archive database: %w", err)
	}
	if err := archive.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	q := queue.New[model.ChatMessage](cfg.BufferSize)
	w := archive.NewWriter(archive.WriterConfig{
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	}, q, pool, logger)
	if err := w.Start(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.Stop(stopCtx); err != nil {
			logger.Warn("archive writer stop", "error", err)
		}
		pool.Close()
	}
	return q, stop, nil
}
