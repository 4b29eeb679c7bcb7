package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdx/nerdx-notify/internal/backend"
)

var pushPlatform string

func init() {
	pushTokenCmd.Flags().StringVar(&pushPlatform, "platform", "desktop", "device platform (ios, android, web, desktop)")
}

// pushTokenCmd registers a device push token
var pushTokenCmd = &cobra.Command{
	Use:   "push-token <token>",
	Short: "Register a device push token for the signed-in user",
	Long: `Register a push token so the backend can deliver notifications to this
device. A token identical to the one last registered for the platform is
not sent again.

Examples:
  nerdx-notify push-token ExponentPushToken[abc] --platform ios`,
	Args: cobra.ExactArgs(1),
	RunE: runPushToken,
}

func runPushToken(cmd *cobra.Command, args []string) error {
	token := args[0]

	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	userID, err := env.client.CurrentSessionUserID(ctx)
	if errors.Is(err, backend.ErrNoSession) {
		return errors.New("not signed in, run 'nerdx-notify login' first")
	}
	if err != nil {
		return err
	}

	if env.cache != nil {
		last, err := env.cache.LastPushToken(ctx, userID, pushPlatform)
		if err != nil {
			env.log.Warn("reading last push token", zap.Error(err))
		} else if last == token {
			cmd.Println("Push token unchanged.")
			return nil
		}
	}

	if err := env.client.RegisterPushToken(ctx, userID, token, pushPlatform); err != nil {
		return fmt.Errorf("registering push token: %w", err)
	}
	if env.cache != nil {
		if err := env.cache.SavePushToken(ctx, userID, pushPlatform, token); err != nil {
			env.log.Warn("remembering push token", zap.Error(err))
		}
	}

	cmd.Println("Push token registered.")
	return nil
}
