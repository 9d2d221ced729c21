package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"github.com/aosus/askaosus/internal/matrix"
	"github.com/aosus/askaosus/internal/statepaths"
	"github.com/aosus/askaosus/internal/statestore"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the Matrix homeserver and save the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(flagOrViperString(cmd, "matrix-user-id", "matrix.user_id"))
			if userID == "" {
				return fmt.Errorf("missing matrix.user_id (set via --matrix-user-id or %s_MATRIX_USER_ID)", envPrefix)
			}

			client, err := matrix.New(matrix.Options{
				HomeserverURL: flagOrViperString(cmd, "matrix-homeserver-url", "matrix.homeserver_url"),
			})
			if err != nil {
				return err
			}

			store, err := statestore.New(statepaths.StoreDir())
			if err != nil {
				return err
			}

			if err := loginAndSave(cmd.Context(), client, store, userID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (device %s)\n", client.UserID(), client.DeviceID())
			return nil
		},
	}

	cmd.Flags().String("matrix-homeserver-url", "", "Matrix homeserver base URL.")
	cmd.Flags().String("matrix-user-id", "", "Bot Matrix user id, e.g. @askaosus:aosus.org.")

	return cmd
}

// restoreOrLogin brings the client to an authenticated state: a saved
// session is restored and verified against /whoami, and anything else falls
// back to a fresh password login that replaces the saved session.
func restoreOrLogin(ctx context.Context, client *matrix.Client, store *statestore.Store, userID string, logger *slog.Logger) error {
	var saved matrix.Session
	found, err := store.ReadJSON(statepaths.SessionFilename, &saved)
	if err != nil {
		logger.Warn("session_read_failed", "error", err.Error())
	}
	if found && saved.UserID == userID {
		if err := client.Restore(saved); err == nil {
			if _, err := client.WhoAmI(ctx); err == nil {
				logger.Info("session_restored", "user_id", userID, "device_id", saved.DeviceID)
				return nil
			}
			logger.Warn("session_stale", "user_id", userID)
		}
	}
	return loginAndSave(ctx, client, store, userID)
}

func loginAndSave(ctx context.Context, client *matrix.Client, store *statestore.Store, userID string) error {
	password := viper.GetString("matrix.password")
	if password == "" {
		p, err := promptPassword(userID)
		if err != nil {
			return err
		}
		password = p
	}

	deviceName := viper.GetString("matrix.device_name")
	if err := client.Login(ctx, userID, password, deviceName); err != nil {
		return err
	}
	if err := store.WriteJSON(statepaths.SessionFilename, client.Session()); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func promptPassword(userID string) (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("missing matrix.password (set via %s_MATRIX_PASSWORD or run interactively)", envPrefix)
	}
	_, _ = fmt.Fprintf(os.Stderr, "Password for %s: ", userID)
	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}
