package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docpipe/internal/core/domain"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Manage metadata definitions and compute values",
}

var metadataListCmd = needsApp(&cobra.Command{
	Use:   "list",
	Short: "List metadata definitions",
	Args:  cobra.NoArgs,
	RunE:  runMetadataList,
})

var metadataAddCmd = needsApp(&cobra.Command{
	Use:   "add [name] [description]",
	Short: "Define a metadata field extracted by the LLM",
	Args:  cobra.ExactArgs(2),
	RunE:  runMetadataAdd,
})

var metadataComputeCmd = needsApp(&cobra.Command{
	Use:   "compute",
	Short: "Extract metadata values with the LLM",
	Long: `Computes values for one document and one definition, or widens the
scope to every document or every definition when a flag is omitted.`,
	Args: cobra.NoArgs,
	RunE: runMetadataCompute,
})

var (
	metadataType    string
	computeDocument string
	computeMetadata string
	metadataJSONOut bool
)

func init() {
	metadataAddCmd.Flags().StringVarP(&metadataType, "type", "t", string(domain.MetadataString),
		"value type: string, int, float, boolean or date")
	metadataComputeCmd.Flags().StringVar(&computeDocument, "document", "", "document uuid (default all)")
	metadataComputeCmd.Flags().StringVar(&computeMetadata, "metadata", "", "metadata uuid (default all)")
	metadataComputeCmd.Flags().BoolVar(&metadataJSONOut, "json", false, "output the report as JSON")

	metadataCmd.AddCommand(metadataListCmd)
	metadataCmd.AddCommand(metadataAddCmd)
	metadataCmd.AddCommand(metadataComputeCmd)
	rootCmd.AddCommand(metadataCmd)
}

func runMetadataList(cmd *cobra.Command, _ []string) error {
	if metadataService == nil {
		return errors.New("metadata service not configured")
	}

	defs, err := metadataService.ListDefinitions(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list definitions: %w", err)
	}
	if len(defs) == 0 {
		cmd.Println("No metadata definitions.")
		return nil
	}
	for _, d := range defs {
		cmd.Printf("  %s  %-8s %s\n", d.UUID, d.Type, d.Name)
	}
	return nil
}

func runMetadataAdd(cmd *cobra.Command, args []string) error {
	if metadataService == nil {
		return errors.New("metadata service not configured")
	}

	def, err := metadataService.AddDefinition(cmd.Context(), domain.MetadataDefinition{
		Name:        args[0],
		Description: args[1],
		Type:        domain.MetadataType(metadataType),
	})
	if err != nil {
		return fmt.Errorf("failed to add definition: %w", err)
	}
	cmd.Printf("Added metadata %s (%s) as %s\n", def.Name, def.Type, def.UUID)
	return nil
}

func runMetadataCompute(cmd *cobra.Command, _ []string) error {
	if metadataService == nil {
		return errors.New("metadata service not configured")
	}

	report, err := metadataService.Compute(cmd.Context(), computeDocument, computeMetadata)
	if err != nil {
		return fmt.Errorf("failed to compute metadata: %w", err)
	}
	if metadataJSONOut {
		return outputJSON(cmd, report)
	}

	for _, o := range report.Outcomes {
		switch o.Status {
		case domain.ComputeOK:
			cmd.Printf("  %s  %s = %s\n", o.DocumentUUID, o.MetadataName, render(o.Value))
		default:
			cmd.Printf("  %s  %s %s: %s\n", o.DocumentUUID, o.MetadataName, o.Status, o.Error)
		}
	}
	cmd.Printf("\n%d computed, %d failed\n", report.Succeeded, report.Failed)
	return nil
}

func render(v *domain.MetadataValue) string {
	if v == nil {
		return "-"
	}
	return v.Render()
}
