package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

var synonymsCmd = &cobra.Command{
	Use:   "synonyms",
	Short: "Manage query synonyms",
}

var synonymsListCmd = needsApp(&cobra.Command{
	Use:   "list",
	Short: "List synonyms",
	Args:  cobra.NoArgs,
	RunE:  runSynonymsList,
})

var synonymsAddCmd = needsApp(&cobra.Command{
	Use:   "add [name] [value]",
	Short: "Rewrite name as value in expanded queries",
	Args:  cobra.ExactArgs(2),
	RunE:  runSynonymsAdd,
})

var synonymsDeleteCmd = needsApp(&cobra.Command{
	Use:   "delete [synonym-uuid]",
	Short: "Delete a synonym",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynonymsDelete,
})

var synonymsExpandCmd = needsApp(&cobra.Command{
	Use:   "expand [query]",
	Short: "Show a query after synonym expansion",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSynonymsExpand,
})

var synonymComments string

func init() {
	synonymsAddCmd.Flags().StringVar(&synonymComments, "comments", "", "free-form note")

	synonymsCmd.AddCommand(synonymsListCmd)
	synonymsCmd.AddCommand(synonymsAddCmd)
	synonymsCmd.AddCommand(synonymsDeleteCmd)
	synonymsCmd.AddCommand(synonymsExpandCmd)
	rootCmd.AddCommand(synonymsCmd)
}

func runSynonymsList(cmd *cobra.Command, _ []string) error {
	if synonymService == nil {
		return errors.New("synonym service not configured")
	}

	list, err := synonymService.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list synonyms: %w", err)
	}
	if len(list) == 0 {
		cmd.Println("No synonyms defined.")
		return nil
	}
	for _, s := range list {
		cmd.Printf("  %s  %s -> %s\n", s.UUID, s.Name, s.Value)
	}
	return nil
}

func runSynonymsAdd(cmd *cobra.Command, args []string) error {
	if synonymService == nil {
		return errors.New("synonym service not configured")
	}

	s, err := synonymService.Add(cmd.Context(), domain.Synonym{Name: args[0], Value: args[1], Comments: synonymComments})
	if err != nil {
		return fmt.Errorf("failed to add synonym: %w", err)
	}
	cmd.Printf("Added synonym %s: %s -> %s\n", s.UUID, s.Name, s.Value)
	return nil
}

func runSynonymsDelete(cmd *cobra.Command, args []string) error {
	if synonymService == nil {
		return errors.New("synonym service not configured")
	}

	if err := synonymService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete synonym: %w", err)
	}
	cmd.Printf("Synonym %s deleted.\n", args[0])
	return nil
}

func runSynonymsExpand(cmd *cobra.Command, args []string) error {
	if synonymService == nil {
		return errors.New("synonym service not configured")
	}

	exp, err := synonymService.Expand(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return fmt.Errorf("failed to expand query: %w", err)
	}
	cmd.Println(exp.ProcessedQuery)
	return nil
}
