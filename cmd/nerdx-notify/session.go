package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/ui/login"
)

var loginEmail string

func init() {
	loginCmd.Flags().StringVar(&loginEmail, "email", "", "prefill the email field")
}

// loginCmd signs in and stores the realtime session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in for live notifications",
	Long: `Sign in with email and password. The session is stored in the system
keyring and refreshed automatically.

Examples:
  nerdx-notify login
  nerdx-notify login --email ada@example.com`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

// logoutCmd signs out
var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the stored session",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

func runLogin(cmd *cobra.Command, args []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	email, password := loginEmail, ""
	if err := login.NewForm(&email, &password).Run(); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	s, err := env.client.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		if backend.IsAuthError(err) {
			return errors.New("invalid email or password")
		}
		return err
	}

	cmd.Printf("Signed in as %s\n", s.Email)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	userID, _ := env.client.CurrentSessionUserID(ctx)
	if err := env.client.SignOut(ctx); err != nil {
		// The local session is gone either way.
		env.log.Warn("server sign out failed", zap.Error(err))
	}
	if userID != "" && env.cache != nil {
		if err := env.cache.ClearSnapshot(ctx, userID); err != nil {
			env.log.Warn("clearing snapshot", zap.Error(err))
		}
	}

	cmd.Println("Signed out.")
	return nil
}
