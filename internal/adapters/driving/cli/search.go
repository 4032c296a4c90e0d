package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

var (
	searchLimit    int
	searchJSON     bool
	searchTags     []string
	searchDocument string
	searchExpand   bool
)

var searchCmd = needsApp(&cobra.Command{
	Use:   "search [question]",
	Short: "Search indexed chunks",
	Long: `Embeds the question and ranks chunks by cosine similarity. Tags and a
document uuid narrow the candidate documents first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
})

var answerCmd = needsApp(&cobra.Command{
	Use:   "answer [question]",
	Short: "Answer a question from the best matching chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnswer,
})

func init() {
	for _, c := range []*cobra.Command{searchCmd, answerCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", domain.DefaultNumResults, "maximum number of chunks")
		c.Flags().StringSliceVar(&searchTags, "tag", nil, "restrict to documents with these tags")
		c.Flags().StringVar(&searchDocument, "document", "", "restrict to one document uuid")
		c.Flags().BoolVar(&searchExpand, "expand-synonyms", false, "rewrite the question with synonyms first")
	}
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(answerCmd)
}

func searchRequest(question string) domain.SearchRequest {
	return domain.SearchRequest{
		Question:       question,
		NumResults:     searchLimit,
		Tags:           searchTags,
		DocumentUUID:   searchDocument,
		ExpandSynonyms: searchExpand,
	}
}

func runSearch(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	result, err := retrievalService.Search(cmd.Context(), searchRequest(args[0]))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return outputJSON(cmd, result)
	}
	return outputSearchTable(cmd, result)
}

func outputSearchTable(cmd *cobra.Command, result *domain.SearchResult) error {
	if len(result.Chunks) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Printf("Results for %q:\n\n", result.Question)
	for i := range result.Chunks {
		// Format: [N] document name (score)
		rc := result.Chunks[i]
		cmd.Printf("[%d] %s (%.3f)\n", i+1, rc.Document.Name, rc.Score)
		cmd.Printf("    %s\n\n", snippet(rc.Chunk.Text, 160))
	}
	return nil
}

func runAnswer(cmd *cobra.Command, args []string) error {
	if retrievalService == nil || answerService == nil {
		return errors.New("answer service not configured")
	}
	ctx := cmd.Context()

	result, err := retrievalService.Search(ctx, searchRequest(args[0]))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	req := domain.AnswerRequest{Question: args[0]}
	for _, rc := range result.Chunks {
		req.Chunks = append(req.Chunks, domain.AnswerChunk{
			DocumentName: rc.Document.Name,
			Text:         rc.Chunk.Text,
			Metadata:     rc.Metadata,
		})
	}

	answer, err := answerService.Answer(ctx, req)
	if err != nil {
		return fmt.Errorf("answer failed: %w", err)
	}
	cmd.Println(answer.Answer)
	return nil
}

func outputJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
