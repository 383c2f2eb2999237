package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/moroshma/jstail/internal/config"
	"github.com/moroshma/jstail/internal/delivery/console"
	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/pkg/timewindow"
)

type tailOptions struct {
	server     string
	window     string
	failures   bool
	traces     []string
	headers    bool
	maxPayload int
}

func newTailCmd(root *rootOptions) *cobra.Command {
	opts := &tailOptions{}

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print every stream's messages to the terminal",
		Example: `  jstail tail --server nats://localhost:4222 --window "Last 15 minutes"
  jstail tail --failures --trace abc123 --trace def456`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.server, "server", "s", "", "NATS address (overrides broker.address)")
	cmd.Flags().StringVarP(&opts.window, "window", "w", "", `Time window, e.g. "Live", "Last 2 hours", "90m"`)
	cmd.Flags().BoolVar(&opts.failures, "failures", false, "Also print the failure feed")
	cmd.Flags().StringSliceVar(&opts.traces, "trace", nil, "Message id to trace (repeatable)")
	cmd.Flags().BoolVar(&opts.headers, "headers", false, "Print message headers")
	cmd.Flags().IntVar(&opts.maxPayload, "max-payload", 0, "Truncate payloads to this many characters, negative hides them")
	return cmd
}

func runTail(ctx context.Context, root *rootOptions, opts *tailOptions) error {
	rt, err := setup(ctx, root, func(cfg *config.Config) {
		if opts.server != "" {
			cfg.Broker.Address = opts.server
		}
		if opts.window != "" {
			cfg.Session.Window = opts.window
		}
		// stdout belongs to the renderer.
		if cfg.Logger.OutputPath == "stdout" {
			cfg.Logger.OutputPath = "stderr"
		}
	})
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	start, err := timewindow.StartTime(rt.cfg.Session.Window, time.Now())
	if err != nil {
		return err
	}

	renderer := console.NewRenderer(os.Stdout, console.Options{
		MaxPayload: opts.maxPayload,
		Headers:    opts.headers,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return rt.worker.Run(ctx) })
	g.Go(func() error { return rt.events.Drain(ctx, renderer) })
	g.Go(func() error {
		for _, cmd := range tailCommands(rt.cfg.Broker.Address, start, opts) {
			if err := rt.worker.Submit(ctx, cmd); err != nil {
				return err
			}
		}
		return nil
	})

	return ignoreCanceled(g.Wait())
}

// tailCommands lists the commands a tail run submits. Trace ids are
// deduplicated since every request opens its own consumer.
func tailCommands(address string, start time.Time, opts *tailOptions) []entity.Command {
	cmds := []entity.Command{
		entity.SetServerAddress{Address: address},
		entity.GetStreams{StartTime: start},
	}
	if opts.failures {
		cmds = append(cmds, entity.ListenForFailures{StartTime: start})
	}

	seen := make(map[string]bool, len(opts.traces))
	for _, id := range opts.traces {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		cmds = append(cmds, entity.FetchMessageTrace{MessageID: id})
	}
	return cmds
}
