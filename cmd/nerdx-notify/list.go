package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerdx/nerdx-notify/internal/backend"
	"github.com/nerdx/nerdx-notify/internal/model"
)

var (
	listLimit  int
	listOffset int
)

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "page size (default from config)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "skip this many notifications")
}

// listCmd prints one page of notifications
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print one page of notifications",
	Long: `Print one page of notifications, newest first.

Examples:
  nerdx-notify list
  nerdx-notify list --limit 50
  nerdx-notify list --limit 20 --offset 20`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func runList(cmd *cobra.Command, args []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	limit := listLimit
	if limit <= 0 {
		limit = env.cfg.Pagination.PageSize
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	userID, err := env.client.CurrentSessionUserID(ctx)
	if errors.Is(err, backend.ErrNoSession) {
		return errors.New("not signed in, run 'nerdx-notify login' first")
	}
	if err != nil {
		return err
	}

	records, err := env.client.FetchRecipientPage(ctx, userID, limit, listOffset)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		cmd.Println("No notifications.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tTYPE\tWHEN\tTITLE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", unreadMark(r), typeOf(r), r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Title())
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if len(records) == limit {
		cmd.Printf("\nMore available: --offset %d\n", listOffset+len(records))
	}
	return nil
}

func unreadMark(r model.Recipient) string {
	if r.Unread() {
		return "*"
	}
	return ""
}

func typeOf(r model.Recipient) model.NotificationType {
	if r.Notification == nil {
		return model.NotificationInfo
	}
	return r.Notification.Type
}
