package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/querymesh/querymesh/client"
	"github.com/spf13/cobra"
)

func newWatchersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watchers",
		Short: "Show the live state of every change watcher",
		Run: func(cmd *cobra.Command, args []string) {
			statuses, err := apiClient.Watchers(context.Background())
			if err != nil {
				fatal("list watchers", err)
			}
			if flagFmt == "table" {
				formatWatcherTable(statuses)
				return
			}
			output(statuses, "")
		},
	}
}

func newMonitorCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll watcher state on an interval until interrupted",
		Run: func(cmd *cobra.Command, args []string) {
			if interval < time.Second {
				fmt.Fprintf(os.Stderr, "Error: --interval must be at least 1s\n")
				os.Exit(1)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				statuses, err := apiClient.Watchers(ctx)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Error: list watchers: %v\n", err)
				} else {
					fmt.Println(time.Now().Format(time.RFC3339))
					formatWatcherTable(statuses)
					fmt.Println()
				}

				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 30*time.Second, "Poll interval")
	return cmd
}

func formatWatcherTable(statuses []client.WatcherStatus) {
	headers := []string{"SOURCE", "NAME", "KIND", "STATE", "PUSH"}
	var rows [][]string
	for _, s := range statuses {
		rows = append(rows, []string{s.SourceID, s.Name, s.Kind, s.State, fmt.Sprintf("%t", s.PushActive)})
	}
	formatTable(headers, rows)
}
