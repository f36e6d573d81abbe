package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/log"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/session"
)

// NewCleanCmd creates the clean command.
func NewCleanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Wipe leftover storage",
		Long: `Clean removes storage that an interrupted run left behind for ephemeral
containers. With --all it also removes the storage of persistent containers
(cookies and history) and the saved session.

Clean refuses to run while an instance is serving.`,
		Args: cobra.NoArgs,
		RunE: runCleanCmd,
	}

	cmd.Flags().Bool("all", false, "Also wipe persistent containers and the saved session")

	return cmd
}

func runCleanCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	all, err := cmd.Flags().GetBool("all")
	if err != nil {
		return err
	}
	if isRunning(cmd.Context(), cfg) {
		return fmt.Errorf("an instance is serving on %s; stop it first", cfg.ListenAddress)
	}

	containers, err := savedContainers(cfg)
	if err != nil {
		return err
	}

	m := session.NewManager(session.WithRoot(cfg.PartitionsDir()), session.WithManagerLogger(log.Discard()))
	var errs []error
	wiped := 0
	for _, c := range containers {
		if c.Persistent && !all {
			continue
		}
		if err := m.WipePartition(c.PartitionID); err != nil {
			errs = append(errs, err)
			continue
		}
		wiped++
	}
	// The ephemeral partition of a persistent container may exist from an
	// earlier configuration.
	if all {
		for _, c := range containers {
			if err := m.WipePartition(model.PartitionID(c.Name, !c.Persistent)); err != nil {
				errs = append(errs, err)
			}
		}
		if err := os.Remove(cfg.SessionFile()); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wiped %d container(s)\n", wiped)
	if all {
		fmt.Fprintln(cmd.OutOrStdout(), "removed saved session")
	}
	return errors.Join(errs...)
}
