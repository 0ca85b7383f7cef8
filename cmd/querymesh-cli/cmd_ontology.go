package main

import (
	"context"
	"fmt"
	"os"

	"github.com/querymesh/querymesh/client"
	"github.com/spf13/cobra"
)

func newOntologyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ontology",
		Short: "Manage business term mappings",
	}
	cmd.AddCommand(ontologyListCmd())
	cmd.AddCommand(ontologyPutCmd())
	cmd.AddCommand(ontologyDeleteCmd())
	return cmd
}

func ontologyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ontology mappings",
		Run: func(cmd *cobra.Command, args []string) {
			mappings, err := apiClient.Ontology.List(context.Background())
			if err != nil {
				fatal("list mappings", err)
			}
			if flagFmt == "table" {
				headers := []string{"ID", "TERM", "SOURCE", "ENTITY"}
				var rows [][]string
				for _, m := range mappings {
					rows = append(rows, []string{m.ID, m.Term, m.SourceID, m.EntityName})
				}
				formatTable(headers, rows)
				return
			}
			if flagFmt == "quiet" {
				for _, m := range mappings {
					fmt.Println(m.ID)
				}
				return
			}
			output(mappings, "")
		},
	}
}

func ontologyPutCmd() *cobra.Command {
	var sourceID, entity string
	cmd := &cobra.Command{
		Use:   "put <term>",
		Short: "Map a business term to an entity in a source",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if sourceID == "" || entity == "" {
				fmt.Fprintf(os.Stderr, "Error: --source and --entity are required\n")
				os.Exit(1)
			}
			mapping, err := apiClient.Ontology.Put(context.Background(), &client.PutOntologyMappingRequest{
				Term:       args[0],
				SourceID:   sourceID,
				EntityName: entity,
			})
			if err != nil {
				fatal("put mapping", err)
			}
			output(mapping, mapping.ID)
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Source ID the term maps to")
	cmd.Flags().StringVar(&entity, "entity", "", "Entity name within the source")
	return cmd
}

func ontologyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a mapping",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Ontology.Delete(context.Background(), args[0]); err != nil {
				fatal("delete mapping", err)
			}
			fmt.Println("deleted")
		},
	}
}
