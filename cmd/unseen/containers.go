package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/api"
	"github.com/nao1215/unseen/internal/config"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/snapshot"
)

// NewContainersCmd creates the containers command group.
func NewContainersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"c"},
		Short:   "List and configure containers",
		Long: `Containers manages the storage compartments.

With a running instance the changes apply immediately: toggling Tor reroutes
the container's pages and re-probes it. Without one the saved session is
updated and the change applies on the next "unseen serve".`,
	}

	cmd.AddCommand(newContainersListCmd())
	cmd.AddCommand(newContainersAddCmd())
	cmd.AddCommand(newContainersTorCmd())

	return cmd
}

func newContainersListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			asJSON, err := cmd.Flags().GetBool("json")
			if err != nil {
				return err
			}

			list, err := apiClient(cfg).Containers(cmd.Context())
			if err != nil {
				if !isUnavailable(err) {
					return err
				}
				list, err = savedContainers(cfg)
				if err != nil {
					return err
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}
			return printContainers(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().BoolP("json", "j", false, "Output JSON")
	return cmd
}

func newContainersAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a container",
		Long: `Add creates a persistent container, or an ephemeral one with --ephemeral.
Adding an existing container changes nothing.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ephemeral, err := cmd.Flags().GetBool("ephemeral")
			if err != nil {
				return err
			}
			name := args[0]
			if name == "" {
				return errors.New("container name must not be empty")
			}

			c, err := apiClient(cfg).AddContainer(cmd.Context(), name, !ephemeral)
			if err != nil {
				if !isUnavailable(err) {
					return err
				}
				c, err = saveContainer(cfg, name, func(sc *snapshot.Container, existed bool) {
					if !existed {
						sc.Persistent = !ephemeral
					}
				})
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", c.Name, c.PartitionID)
			return nil
		},
	}
	cmd.Flags().Bool("ephemeral", false, "Do not keep the container's storage after shutdown")
	return cmd
}

func newContainersTorCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "tor <name> <on|off>",
		Short:     "Route a container through Tor or directly",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			enabled, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			name := args[0]

			res, err := apiClient(cfg).SetContainerTor(cmd.Context(), name, enabled)
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, res.Mode)
				if res.Error != "" {
					return fmt.Errorf("tor unavailable for %s: %s", name, res.Error)
				}
				return nil
			case !isUnavailable(err):
				return err
			}

			if _, err := saveContainer(cfg, name, func(sc *snapshot.Container, _ bool) {
				sc.Tor = enabled
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: tor %s on next start\n", name, args[1])
			return nil
		},
	}
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on", "true", "1":
		return true, nil
	case "off", "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

// loadSnapshot returns the saved session, or an empty one.
func loadSnapshot(cfg *config.Config) (*snapshot.Snapshot, error) {
	snap, err := snapshot.Load(cfg.SessionFile())
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return &snapshot.Snapshot{}, nil
	}
	return snap, err
}

// savedContainers merges the configured containers with the saved session.
func savedContainers(cfg *config.Config) ([]model.Container, error) {
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return nil, err
	}

	out := make([]model.Container, 0, len(cfg.Containers)+len(snap.Containers))
	seen := make(map[string]bool, cap(out))
	add := func(name string, persistent, tor bool) {
		if seen[name] {
			return
		}
		seen[name] = true
		c := model.NewContainer(name, persistent)
		c.AnonymityEnabled = tor
		out = append(out, c)
	}
	for _, cc := range cfg.Containers {
		sc, _ := snap.Container(cc.Name)
		add(cc.Name, cc.Persistent, sc.Tor)
	}
	for _, sc := range snap.Containers {
		add(sc.Name, sc.Persistent, sc.Tor)
	}
	return out, nil
}

// saveContainer updates or adds a container in the saved session. New
// containers are persistent unless they are the ephemeral one; update may
// change that.
func saveContainer(cfg *config.Config, name string, update func(c *snapshot.Container, existed bool)) (model.Container, error) {
	snap, err := loadSnapshot(cfg)
	if err != nil {
		return model.Container{}, err
	}

	sc, existed := snap.Container(name)
	if !existed {
		sc = snapshot.Container{Name: name, Persistent: name != cfg.EphemeralContainer}
		for _, cc := range cfg.Containers {
			if cc.Name == name {
				sc.Persistent = cc.Persistent
				existed = true
			}
		}
	}
	update(&sc, existed)
	snap.PutContainer(sc)

	if err := snapshot.Save(cfg.SessionFile(), snap); err != nil {
		return model.Container{}, err
	}
	c := model.NewContainer(sc.Name, sc.Persistent)
	c.AnonymityEnabled = sc.Tor
	return c, nil
}

func printContainers(w io.Writer, list []model.Container) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPARTITION\tSTORAGE\tROUTE")
	for _, c := range list {
		storage := "ephemeral"
		if c.Persistent {
			storage = "persistent"
		}
		route := model.RouteDirect
		if c.AnonymityEnabled {
			route = model.RouteTor
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.PartitionID, storage, route)
	}
	return tw.Flush()
}

// isUnavailable reports whether err means no instance is running.
func isUnavailable(err error) bool {
	return errors.Is(err, api.ErrUnavailable)
}
