package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/roomchat/internal/api"
	"github.com/rickgao/roomchat/internal/config"
	"github.com/rickgao/roomchat/internal/connection"
	"github.com/rickgao/roomchat/internal/session"
	"github.com/rickgao/roomchat/internal/stomp"
	"github.com/rickgao/roomchat/internal/version"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "roomchat",
		Short:         "Terminal client for room chat",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Flags().Changed("config"))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", filepath.Join(config.DefaultDataDir(), "config.yaml"), "path to config file")
	flags.StringVar(&a.logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	root.AddCommand(
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newCreateRoomCmd(a),
		newJoinRoomCmd(a),
		newChatCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and installs the logger. A missing config file is
// only an error when --config was given explicitly.
func (a *app) setup(explicit bool) error {
	cfg, err := config.LoadAndValidate(a.configPath)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return err
	}

	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(a.logger)

	a.logger.Debug("configuration loaded",
		"config", a.configPath,
		"rest_url", cfg.Server.RestURL,
		"broker_url", cfg.Server.BrokerURL,
		"transport", cfg.Server.Transport,
	)
	return nil
}

func (a *app) openStore() (*session.Store, error) {
	store, err := session.Open(a.cfg.Session.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}

func (a *app) apiClient(tokens api.TokenSource) *api.Client {
	return api.NewClient(a.cfg.Server.RestURL,
		api.WithTokenSource(tokens),
		api.WithLogger(a.logger),
		api.WithTimeout(a.cfg.Server.Timeout),
		api.WithRetries(a.cfg.Server.MaxRetries, time.Second),
	)
}

// connectionConfig maps file configuration onto the connection manager.
// Negative heart-beat settings disable that direction.
func connectionConfig(cfg *config.Config) connection.Config {
	c := cfg.Connection
	return connection.Config{
		BrokerURL:            cfg.Server.BrokerURL,
		Transport:            stomp.Transport(cfg.Server.Transport),
		ReconnectBaseDelay:   c.ReconnectBaseDelay,
		MaxReconnectAttempts: c.MaxReconnectAttempts,
		HandshakeTimeout:     c.HandshakeTimeout,
		HeartbeatOutgoing:    max(c.HeartbeatOutgoing, 0),
		HeartbeatIncoming:    max(c.HeartbeatIncoming, 0),
		WriteTimeout:         c.WriteTimeout,
		InboundBufferSize:    c.BufferSize,
	}
}
