package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/report"
)

// ErrLeakDetected is returned when a container expected to use Tor did not.
var ErrLeakDetected = errors.New("routing leak detected")

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe [container...]",
		Short: "Check which route each container's traffic actually takes",
		Long: `Probe fetches an IP echo endpoint and the Tor check page from inside each
container, using a throwaway copy of the container's session, and compares
the observed route with the expected one.

A container that should use Tor but reached the check page directly is a
LEAK; the command then exits with an error.

Examples:
  # Probe every container
  unseen probe

  # Route Work through Tor, then verify it
  unseen probe Work --tor

  # Markdown report written to a file
  unseen probe --markdown -o status.md`,
		Args: cobra.ArbitraryArgs,
		RunE: runProbeCmd,
	}

	cmd.Flags().Bool("tor", false, "Route the named containers through Tor before probing")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.MarkFlagsMutuallyExclusive("json", "markdown")

	return cmd
}

func runProbeCmd(cmd *cobra.Command, args []string) error {
	useTor, err := cmd.Flags().GetBool("tor")
	if err != nil {
		return err
	}
	if useTor && len(args) == 0 {
		return errors.New("--tor needs at least one container name")
	}

	b, logger, err := newBrowser(cmd)
	if err != nil {
		return err
	}
	defer shutdown(b, logger)

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if useTor {
		for _, name := range args {
			if _, err := b.SetContainerTor(ctx, name, true); err != nil {
				return err
			}
		}
		// SetContainerTor already started a probe per container.
		shutdown(b, logger)
	} else if len(args) == 0 {
		b.ProbeAll(ctx)
	} else {
		for _, name := range args {
			if !knownContainer(b.Containers(), name) {
				return fmt.Errorf("unknown container %q", name)
			}
			b.Probe(ctx, name)
		}
	}

	rep := b.Report()
	if err := writeReport(cmd, rep); err != nil {
		return err
	}
	if leaks := rep.Leaks(); len(leaks) > 0 {
		return fmt.Errorf("%w in %d container(s)", ErrLeakDetected, len(leaks))
	}
	return nil
}

func knownContainer(list []model.Container, name string) bool {
	for _, c := range list {
		if c.Name == name {
			return true
		}
	}
	return false
}

// writeReport writes rep in the format selected by the report flags.
func writeReport(cmd *cobra.Command, rep *report.Report) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	verbose := getVerboseFlag(cmd)
	out := cmd.OutOrStdout()
	var summary report.Writer
	if output != "" {
		if dir := filepath.Dir(output); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		}
		f, err := os.Create(output) //nolint:gosec // user-provided output path is intentional
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		// The terminal still gets the plain summary.
		summary = report.NewSimpleWriter(out, report.WithVerbose(verbose))
		out = f
	}

	var w report.Writer
	switch {
	case asJSON:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case asMarkdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(verbose))
	}
	w = report.NewMultiWriter(w, summary)
	if _, err := w.Write(rep); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
