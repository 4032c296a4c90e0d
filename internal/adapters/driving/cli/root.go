// Package cli implements the docpipe command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/docpipe/internal/adapters/driven/config/file"
	"github.com/custodia-labs/docpipe/internal/bootstrap"
	"github.com/custodia-labs/docpipe/internal/core/ports/driving"
	"github.com/custodia-labs/docpipe/internal/logger"
)

// annotationNeedsApp marks commands that run against the wired services.
const annotationNeedsApp = "docpipe.needs-app"

var (
	version    = "dev"
	configPath string
	verbose    bool

	cfg      *file.Config
	app      *bootstrap.App
	buildApp = bootstrap.Build

	// connected is set once the service ports below are bound.
	connected        bool
	retrievalService driving.RetrievalService
	answerService    driving.AnswerService
	documentService  driving.DocumentService
	synonymService   driving.SynonymService
	metadataService  driving.MetadataService
)

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Document ingestion and retrieval pipeline",
	Long: `docpipe ingests documents dropped into object storage, extracts and
chunks their text, embeds the chunks and serves semantic search, metadata
extraction and grounded answers over HTTP and MCP.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.docpipe/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command with the given build version.
func Execute(v string) error {
	if v != "" {
		version = v
	}
	defer closeApp()
	return rootCmd.Execute()
}

func setup(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}

	loaded, err := file.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded

	if lvl, err := logger.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warn("config: %v", err)
	}
	if verbose {
		logger.SetVerbose(true)
	}

	if cmd.Annotations[annotationNeedsApp] == "" || connected {
		return nil
	}
	return connect(cmd)
}

// connect builds the application once and binds its ports.
func connect(cmd *cobra.Command) error {
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	app = a
	retrievalService = a.Retrieval
	answerService = a.Answers
	documentService = a.Documents
	synonymService = a.Synonyms
	metadataService = a.Metadata
	connected = true
	return nil
}

func closeApp() {
	if app == nil {
		return
	}
	if err := app.Close(); err != nil {
		logger.Warn("closing: %v", err)
	}
	app = nil
	connected = false
}

// needsApp marks cmd for connect.
func needsApp(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = map[string]string{}
	}
	cmd.Annotations[annotationNeedsApp] = "true"
	return cmd
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (ctx context.Context, stop context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}
