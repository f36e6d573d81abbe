package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
)

// NewOpenCmd creates the open command.
func NewOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <url-or-search>",
		Short: "Load a page once in a container and print what was loaded",
		Long: `Open loads address bar input in a container without a running instance and
prints the final URL and title. Input without a scheme is treated like the
address bar does: host-like input gets https://, anything else is searched.

Persistent containers record the visit in their history. Responses that are
not pages are saved to the downloads directory.

Examples:
  unseen open example.com
  unseen open https://check.torproject.org --container Work --tor
  unseen open "privacy browsers" --json`,
		Args: cobra.ExactArgs(1),
		RunE: runOpenCmd,
	}

	cmd.Flags().String("container", "", "Container to load in (default: the ephemeral container)")
	cmd.Flags().Bool("tor", false, "Route the container through Tor first")
	cmd.Flags().BoolP("json", "j", false, "Output JSON")

	return cmd
}

type openResult struct {
	Page      model.TabInfo        `json:"page"`
	Error     string               `json:"error,omitempty"`
	Downloads []model.DownloadDone `json:"downloads,omitempty"`
	Routing   *model.RoutingResult `json:"routing,omitempty"`
}

func runOpenCmd(cmd *cobra.Command, args []string) error {
	name, err := cmd.Flags().GetString("container")
	if err != nil {
		return err
	}
	useTor, err := cmd.Flags().GetBool("tor")
	if err != nil {
		return err
	}
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	b, logger, err := newBrowser(cmd)
	if err != nil {
		return err
	}
	defer shutdown(b, logger)
	if name == "" {
		name = b.Config().EphemeralContainer
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	downloads := collectDownloads(b.Events())

	var res openResult
	if useTor {
		rr, err := b.SetContainerTor(ctx, name, true)
		if err != nil {
			return err
		}
		res.Routing = &rr
		if rr.Error != "" {
			return fmt.Errorf("tor unavailable for %s: %s", name, rr.Error)
		}
	}

	id, loadErr := b.NewPage(ctx, name, args[0])
	if id == "" {
		return loadErr
	}
	for _, tab := range b.TabState().Tabs {
		if tab.ID == id {
			res.Page = tab
		}
	}
	if loadErr != nil {
		res.Error = loadErr.Error()
	}

	// Shutdown waits for downloads and closes the bus.
	shutdown(b, logger)
	res.Downloads = <-downloads

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printOpenResult(cmd.OutOrStdout(), name, res)
	}
	return loadErr
}

// collectDownloads gathers download:done events until the bus is closed.
func collectDownloads(bus *event.Bus) <-chan []model.DownloadDone {
	events, _ := bus.Subscribe(event.DefaultBuffer)
	out := make(chan []model.DownloadDone, 1)
	go func() {
		var done []model.DownloadDone
		for ev := range events {
			if d, ok := ev.Data.(model.DownloadDone); ok {
				done = append(done, d)
			}
		}
		out <- done
	}()
	return out
}

func printOpenResult(w io.Writer, container string, res openResult) {
	fmt.Fprintf(w, "container: %s\n", container)
	if res.Routing != nil {
		fmt.Fprintf(w, "route:     %s\n", res.Routing.Mode)
	}
	fmt.Fprintf(w, "url:       %s\n", res.Page.URL)
	fmt.Fprintf(w, "title:     %s\n", res.Page.Title)
	if res.Page.Favicon != "" {
		fmt.Fprintf(w, "favicon:   %s\n", res.Page.Favicon)
	}
	for _, d := range res.Downloads {
		fmt.Fprintf(w, "download:  %s (%s) -> %s\n", d.Name, d.State, d.Path)
		for _, warn := range d.Warnings {
			fmt.Fprintf(w, "  metadata: %s\n", warn)
		}
	}
	if res.Error != "" {
		fmt.Fprintf(w, "error:     %s\n", res.Error)
	}
}
