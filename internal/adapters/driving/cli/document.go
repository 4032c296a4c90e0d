package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage ingested documents",
	Long:  `List, view, retag or delete ingested documents.`,
}

var documentListCmd = needsApp(&cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
})

var documentGetCmd = needsApp(&cobra.Command{
	Use:   "get [document-uuid]",
	Short: "Show a document and its metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
})

var documentTagCmd = needsApp(&cobra.Command{
	Use:   "tag [document-uuid] [tag...]",
	Short: "Replace a document's tags",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDocumentTag,
})

var documentDeleteCmd = needsApp(&cobra.Command{
	Use:   "delete [document-uuid]",
	Short: "Delete a document with its chunks and metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
})

var (
	documentListTags []string
	documentListFrom string
	documentListTo   string
)

func init() {
	documentListCmd.Flags().StringSliceVar(&documentListTags, "tag", nil, "only documents with these tags")
	documentListCmd.Flags().StringVar(&documentListFrom, "from", "", "created on or after (YYYY-MM-DD)")
	documentListCmd.Flags().StringVar(&documentListTo, "to", "", "created on or before (YYYY-MM-DD)")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentTagCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	docs, err := documentService.List(cmd.Context(), domain.DocumentListRequest{
		Tags:      documentListTags,
		StartDate: documentListFrom,
		EndDate:   documentListTo,
	})
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}
	for i := range docs {
		cmd.Printf("  %s  %-9s  %s\n", docs[i].UUID, docs[i].Status, docs[i].Name)
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.UUID)
	cmd.Printf("  Name:     %s\n", doc.Name)
	cmd.Printf("  Type:     %s\n", doc.Type)
	cmd.Printf("  Status:   %s\n", doc.Status)
	cmd.Printf("  Location: %s\n", doc.Location)
	if len(doc.Tags) > 0 {
		cmd.Printf("  Tags:     %s\n", strings.Join(doc.Tags, ", "))
	}
	if doc.Failure != nil {
		cmd.Printf("  Failure:  %s\n", doc.Failure.Reason)
	}
	cmd.Printf("  Created:  %s\n", doc.CreatedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))

	if len(doc.Metadata) > 0 {
		cmd.Println("\n  Metadata:")
		for _, m := range doc.Metadata {
			cmd.Printf("    %s: %v\n", m.Name, m.Value)
		}
	}
	return nil
}

func runDocumentTag(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	doc, err := documentService.UpdateTags(cmd.Context(), args[0], args[1:])
	if err != nil {
		return fmt.Errorf("failed to update tags: %w", err)
	}
	cmd.Printf("Document %s tags: [%s]\n", doc.UUID, strings.Join(doc.Tags, ", "))
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if documentService == nil {
		return errors.New("document service not configured")
	}

	if err := documentService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}
