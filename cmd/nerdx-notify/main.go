// Package main implements the nerdx-notify terminal client for the NerdX
// notification center.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nerdx/nerdx-notify/internal/model"
)

var (
	// configPath is the YAML config file.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nerdx-notify",
	Short: "Realtime notification center for NerdX",
	Long: `nerdx-notify shows your NerdX notifications in the terminal, newest first.
New notifications arrive live while you are signed in; older ones load as
you scroll.

Configuration is read from ~/.config/nerdx/config.yaml and NERDX_*
environment variables (e.g. NERDX_BACKEND_URL, NERDX_BACKEND_ANON_KEY).`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(pushTokenCmd)
}
