package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <question>",
		Short: "Rank registered sources by relevance to a question",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			question := strings.Join(args, " ")
			result, err := apiClient.Query.Classify(context.Background(), question)
			if err != nil {
				fatal("classify", err)
			}
			if flagFmt == "table" {
				headers := []string{"SOURCE", "NAME", "KIND", "SCORE", "ONTOLOGY"}
				var rows [][]string
				for _, m := range result.Selected {
					rows = append(rows, []string{
						m.SourceID, m.Name, m.Kind,
						fmt.Sprintf("%.2f", m.Score),
						fmt.Sprintf("%t", m.Ontology),
					})
				}
				formatTable(headers, rows)
				return
			}
			output(result, "")
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <question>",
		Short: "Classify a question and build an optimized query plan",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			question := strings.Join(args, " ")
			resp, err := apiClient.Query.Plan(context.Background(), question)
			if err != nil {
				fatal("plan", err)
			}
			if resp.Plan == nil {
				fmt.Println("no source matched the question")
				return
			}
			if flagFmt == "table" {
				headers := []string{"OP", "SOURCE", "KIND", "STAGE", "DEPENDS ON"}
				var rows [][]string
				for _, op := range resp.Plan.Operations {
					rows = append(rows, []string{
						op.ID, op.SourceID, op.Kind,
						fmt.Sprintf("%d", op.Stage),
						strings.Join(op.DependsOn, ","),
					})
				}
				formatTable(headers, rows)
				return
			}
			output(resp, resp.Plan.ID)
		},
	}
}
