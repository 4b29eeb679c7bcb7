package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nerdx/nerdx-notify/internal/app"
)

// tuiCmd runs the notification screen
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the notification screen (default)",
	Long: `Open the full-screen notification list.

Keys:
  enter  mark read        a  mark all read
  d      dismiss          r  refresh
  m      load more        v  details
  ?      help
  q      quit`,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	env, err := newEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	m := app.New(env.client, env.feedFactory(), env.log)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(app.Model); ok {
		fm.Close()
	}
	if err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}
