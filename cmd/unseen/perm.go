package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/log"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/permission"
)

// NewPermCmd creates the perm command group.
func NewPermCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perm",
		Short: "Show and change stored site permissions",
		Long: `Perm edits the stored media and geolocation decisions. Sites without a
stored decision are denied. A running instance reads the store at startup.`,
	}

	cmd.AddCommand(newPermGetCmd())
	cmd.AddCommand(newPermSetCmd())
	cmd.AddCommand(newPermListCmd())

	return cmd
}

func newArbiter(cmd *cobra.Command) (*permission.Arbiter, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := permission.NewArbiter(cfg.PermissionsFile(), permission.WithLogger(log.Discard()))
	if err := a.Reload(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; starting from an empty store\n", err)
	}
	return a, nil
}

func newPermGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <host>",
		Short: "Show the decisions for a host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newArbiter(cmd)
			if err != nil {
				return err
			}
			return printPermissions(cmd.OutOrStdout(), []model.PermissionDecision{a.Get(args[0])})
		},
	}
}

func newPermSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <host> <media|geo> <allow|deny>",
		Short: "Store a decision for a host",
		Example: `  unseen perm set meet.example.com media allow
  unseen perm set maps.example.com geo deny`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := permission.ParseCapability(args[1])
			if err != nil {
				return err
			}
			var allow bool
			switch args[2] {
			case "allow":
				allow = true
			case "deny":
			default:
				return fmt.Errorf("expected allow or deny, got %q", args[2])
			}

			a, err := newArbiter(cmd)
			if err != nil {
				return err
			}
			if err := a.Set(args[0], c, allow); err != nil {
				return err
			}
			return printPermissions(cmd.OutOrStdout(), []model.PermissionDecision{a.Get(args[0])})
		},
	}
}

func newPermListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every stored decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newArbiter(cmd)
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(a.All())
			}
			return printPermissions(cmd.OutOrStdout(), a.All())
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

func printPermissions(w io.Writer, decisions []model.PermissionDecision) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tMEDIA\tGEO")
	for _, d := range decisions {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Host, decision(d.Media), decision(d.Geo))
	}
	return tw.Flush()
}

func decision(allow bool) string {
	if allow {
		return "allow"
	}
	return "deny"
}
