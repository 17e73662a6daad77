package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rickgao/roomchat/internal/session"
)

func newCreateRoomCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-room <room>",
		Short: "Create a chat room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(store *session.Store) error {
				msg, err := a.apiClient(store).CreateRoom(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("create room %s: %w", args[0], err)
				}
				printMessage(cmd.OutOrStdout(), msg, "room "+args[0]+" created")
				return nil
			})
		},
	}
}

func newJoinRoomCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "join-room <room>",
		Short: "Register as a member of a chat room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(func(store *session.Store) error {
				msg, err := a.apiClient(store).JoinRoom(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("join room %s: %w", args[0], err)
				}
				printMessage(cmd.OutOrStdout(), msg, "joined room "+args[0])
				return nil
			})
		},
	}
}

// withSession opens the store, requires a logged-in user and runs fn.
func (a *app) withSession(fn func(*session.Store) error) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if !store.Authenticated() {
		return fmt.Errorf("%w: run 'roomchat login <username>' first", session.ErrNotLoggedIn)
	}
	return fn(store)
}
