package main

import (
	"context"
	"fmt"
	"os"

	"github.com/querymesh/querymesh/client"
	"github.com/spf13/cobra"
)

func newSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage data sources",
	}
	cmd.AddCommand(sourceListCmd())
	cmd.AddCommand(sourceRegisterCmd())
	cmd.AddCommand(sourceGetCmd())
	cmd.AddCommand(sourceDeregisterCmd())
	cmd.AddCommand(sourceCheckCmd())
	cmd.AddCommand(sourceSchemaCmd())
	cmd.AddCommand(sourceVersionsCmd())
	return cmd
}

func sourceListCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		Run: func(cmd *cobra.Command, args []string) {
			sources, err := apiClient.Sources.List(context.Background(), kind)
			if err != nil {
				fatal("list sources", err)
			}
			if flagFmt == "table" {
				headers := []string{"ID", "NAME", "KIND", "SEQ", "LAST CHECKED"}
				var rows [][]string
				for _, s := range sources {
					checked := "never"
					if s.LastCheckedAt != nil {
						checked = s.LastCheckedAt.Format("2006-01-02 15:04:05")
					}
					rows = append(rows, []string{s.ID, s.Name, s.Kind, fmt.Sprintf("%d", s.CurrentSeq), checked})
				}
				formatTable(headers, rows)
				return
			}
			if flagFmt == "quiet" {
				for _, s := range sources {
					fmt.Println(s.ID)
				}
				return
			}
			output(sources, "")
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind: relational|document|vector|message-store")
	return cmd
}

func sourceRegisterCmd() *cobra.Command {
	var kind, dsn, id string
	cmd := &cobra.Command{
		Use:   "register <name>",
		Short: "Register a backend and start watching it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if kind == "" || dsn == "" {
				fmt.Fprintf(os.Stderr, "Error: --kind and --dsn are required\n")
				os.Exit(1)
			}
			src, err := apiClient.Sources.Register(context.Background(), &client.RegisterSourceRequest{
				ID:   id,
				Name: args[0],
				Kind: kind,
				DSN:  dsn,
			})
			if err != nil {
				fatal("register source", err)
			}
			output(src, src.ID)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Backend kind: relational|document|vector|message-store")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Connection string for the backend")
	cmd.Flags().StringVar(&id, "id", "", "Explicit source ID (default: generated)")
	return cmd
}

func sourceGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a source by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			src, err := apiClient.Sources.Get(context.Background(), args[0])
			if err != nil {
				fatal("get source", err)
			}
			output(src, src.ID)
		},
	}
}

func sourceDeregisterCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deregister <id>",
		Short: "Deregister a source and stop its watcher",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Sources.Deregister(context.Background(), args[0]); err != nil {
				fatal("deregister source", err)
			}
			fmt.Println("deregistered")
		},
	}
}

func sourceCheckCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "check [id]",
		Short: "Force an immediate schema check",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			if all || len(args) == 0 {
				resp, err := apiClient.Sources.ForceCheckAll(ctx)
				if err != nil {
					fatal("check all sources", err)
				}
				output(resp, resp.Status)
				return
			}
			resp, err := apiClient.Sources.ForceCheck(ctx, args[0])
			if err != nil {
				fatal("check source", err)
			}
			output(resp, resp.Status)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Check every watched source")
	return cmd
}

func sourceSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema <id>",
		Short: "Show the current schema version for a source",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			version, err := apiClient.Sources.CurrentSchema(context.Background(), args[0])
			if err != nil {
				fatal("get schema", err)
			}
			if flagFmt == "table" {
				headers := []string{"ENTITY", "FIELDS", "ROWS"}
				var rows [][]string
				for _, e := range version.Document.Entities {
					rows = append(rows, []string{e.Name, fmt.Sprintf("%d", len(e.Fields)), fmt.Sprintf("%d", e.CountEstimate)})
				}
				formatTable(headers, rows)
				return
			}
			output(version, version.Fingerprint)
		},
	}
}

func sourceVersionsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "versions <id>",
		Short: "List recorded schema versions for a source, newest first",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if limit < 0 {
				fmt.Fprintf(os.Stderr, "Error: --limit must be non-negative\n")
				os.Exit(1)
			}
			versions, err := apiClient.Sources.Versions(context.Background(), args[0], limit)
			if err != nil {
				fatal("list versions", err)
			}
			if flagFmt == "table" {
				headers := []string{"SEQ", "FINGERPRINT", "ENTITIES", "CREATED"}
				var rows [][]string
				for _, v := range versions {
					fp := v.Fingerprint
					if len(fp) > 12 {
						fp = fp[:12]
					}
					rows = append(rows, []string{
						fmt.Sprintf("%d", v.Seq),
						fp,
						fmt.Sprintf("%d", len(v.Document.Entities)),
						v.CreatedAt.Format("2006-01-02 15:04:05"),
					})
				}
				formatTable(headers, rows)
				return
			}
			output(versions, "")
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Max versions to return")
	return cmd
}
