package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for unseen.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unseen",
		Short: "Compartmentalized browsing with per-container Tor routing",
		Long: `unseen keeps every container (Private, Work, Social, ...) in its own
storage partition and routes each container directly or through Tor.

"unseen serve" runs the browser core and its loopback control API. The other
commands either talk to a running instance or work on the stored state.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: .unseen in current or home directory)")
	cmd.PersistentFlags().String("data-dir", "",
		"Data directory (default: XDG data directory)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewOpenCmd())
	cmd.AddCommand(NewProbeCmd())
	cmd.AddCommand(NewContainersCmd())
	cmd.AddCommand(NewPermCmd())
	cmd.AddCommand(NewTorCmd())
	cmd.AddCommand(NewCleanCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
