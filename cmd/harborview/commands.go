package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcourtman/harborview/internal/logging"
	"github.com/rcourtman/harborview/internal/monitoring"
)

func newSnapshotCmd() *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Connect to the engine, capture one snapshot and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			comps := buildComponents(cfg, logging.Logger())
			defer comps.close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			handle, status, err := comps.cache.Acquire(ctx)
			if err != nil {
				return fmt.Errorf("engine %s: %w", status, err)
			}
			defer comps.cache.Release(handle)

			state, err := comps.fetcher.Fetch(ctx, handle, status)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(state)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print single-line JSON")
	return cmd
}

func newContextsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contexts",
		Short: "List the engine endpoints harborview would try",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			enumerator := newEnumeratorFn(cfg, logging.Logger())

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			endpoints, err := enumerator.Enumerate(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tHOST\tTRANSPORT")
			for _, ep := range endpoints {
				name := ep.Name
				if name == "" {
					name = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", name, ep.Host, ep.Transport)
			}
			return w.Flush()
		},
	}
}

func newWatchCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the monitor in the foreground and print every state update",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			comps := buildComponents(cfg, logging.Logger())
			defer comps.close()

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fanout := monitoring.NewFanout()
			id, updates := fanout.Subscribe(16)
			defer fanout.Unsubscribe(id)

			monitor := comps.newMonitor(fanout)
			if _, err := monitor.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = monitor.Stop(stopCtx)
			}()

			return printUpdates(ctx, cmd, updates, asJSON, limit)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full snapshots as JSON lines")
	cmd.Flags().IntVar(&limit, "count", 0, "exit after this many updates (0 = until interrupted)")
	return cmd
}

func printUpdates(ctx context.Context, cmd *cobra.Command, updates <-chan monitoring.Update, asJSON bool, limit int) error {
	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if asJSON {
				if err := enc.Encode(update.State); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, stateSummary(update.State))
			}
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		}
	}
}
