package main

import (
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nao1215/unseen/internal/event"
	"github.com/nao1215/unseen/internal/model"
	"github.com/nao1215/unseen/internal/tor"
)

// NewTorCmd creates the tor command group.
func NewTorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tor",
		Short: "Control the Tor process",
		Long: `Tor starts, stops and inspects the Tor process shared by all containers.

start, stop and status act on a running "unseen serve" when there is one.
Without one, start runs Tor in the foreground until interrupted.`,
	}

	cmd.AddCommand(newTorStartCmd())
	cmd.AddCommand(newTorStopCmd())
	cmd.AddCommand(newTorStatusCmd())
	cmd.AddCommand(newTorCheckCmd())

	return cmd
}

func newTorStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start Tor and wait until it is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			st, err := apiClient(cfg).StartTor(ctx)
			if err == nil {
				printTorStatus(cmd.OutOrStdout(), st)
				return nil
			}
			if !isUnavailable(err) {
				return err
			}

			b, logger, err := newBrowser(cmd)
			if err != nil {
				return err
			}
			defer shutdown(b, logger)

			stop := printBootstrap(cmd.OutOrStdout(), b.Events())
			err = b.StartTor(ctx)
			stop()
			if err != nil {
				return err
			}

			printTorStatus(cmd.OutOrStdout(), b.TorStatus())
			fmt.Fprintln(cmd.OutOrStdout(), "Tor is running (Ctrl-C to stop)")
			<-ctx.Done()
			return nil
		},
	}
}

func newTorStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop Tor in the running instance",
		Long: `Stop stops Tor in the running instance. Containers routed through Tor
keep their route and fail closed until Tor is started again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := apiClient(cfg).StopTor(cmd.Context())
			if err != nil {
				if isUnavailable(err) {
					return fmt.Errorf("no instance is running on %s", cfg.ListenAddress)
				}
				return err
			}
			printTorStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newTorStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the Tor status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := apiClient(cfg).TorStatus(cmd.Context())
			if err == nil {
				printTorStatus(cmd.OutOrStdout(), st)
				return nil
			}
			if !isUnavailable(err) {
				return err
			}

			addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.TorPort))
			client, err := tor.NewClient(addr)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "no instance is running on %s\n", cfg.ListenAddress)
			fmt.Fprintf(out, "backend:  %s\n", cfg.TorBackend)
			fmt.Fprintf(out, "data dir: %s\n", cfg.TorDataDir())
			status := client.CheckConnection(cmd.Context())
			fmt.Fprintf(out, "listener: %s %s\n", addr, status)
			if status == tor.ProxyStatusOK {
				fmt.Fprintln(out, "an existing Tor listener would be adopted")
			}
			return nil
		},
	}
}

func newTorCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [host:port]",
		Short: "Check that a SOCKS listener is a working Tor proxy",
		Long: `Check performs a SOCKS5 handshake and an onion CONNECT against the
listener (default: 127.0.0.1 and the configured Tor port) and fails unless
it answers like Tor.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.TorPort))
			if len(args) == 1 {
				addr = args[0]
			}
			client, err := tor.NewClient(addr)
			if err != nil {
				return err
			}
			status := client.CheckConnection(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, status)
			return status.Error()
		},
	}
}

// printBootstrap prints bootstrap progress until the returned function is
// called.
func printBootstrap(w io.Writer, bus *event.Bus) func() {
	events, cancel := bus.Subscribe(event.DefaultBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			switch data := ev.Data.(type) {
			case model.TorBoot:
				fmt.Fprintf(w, "%3d%% %s\n", data.Percent, data.Message)
			case model.TorError:
				fmt.Fprintf(w, "error: %s\n", data.Error)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func printTorStatus(w io.Writer, st tor.Status) {
	fmt.Fprintf(w, "state:    %s\n", st.State)
	fmt.Fprintf(w, "port:     %d\n", st.Port)
	if st.Percent > 0 {
		fmt.Fprintf(w, "progress: %d%% %s\n", st.Percent, st.Message)
	}
	if st.DataDir != "" {
		fmt.Fprintf(w, "data dir: %s\n", st.DataDir)
	}
	switch {
	case st.Adopted:
		fmt.Fprintln(w, "process:  adopted existing listener")
	case st.Embedded:
		fmt.Fprintln(w, "process:  embedded")
	case st.PID > 0:
		fmt.Fprintf(w, "process:  pid %d\n", st.PID)
	}
}
