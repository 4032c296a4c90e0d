package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docpipe/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/docpipe/internal/logger"
)

var (
	serveAddr     string
	serveNoWorker bool
)

var serveCmd = needsApp(&cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the storage event worker",
	Long: `Serves the HTTP API and, unless --no-worker is given, consumes storage
notifications from both buckets in the same process. Run the worker
separately with "docpipe worker" when the API is scaled out.`,
	Args: cobra.NoArgs,
	RunE: runServe,
})

var workerCmd = needsApp(&cobra.Command{
	Use:   "worker",
	Short: "Consume storage notifications",
	Long:  `Listens on the intake and indexed buckets and drives each object through the pipeline.`,
	Args:  cobra.NoArgs,
	RunE:  runWorker,
})

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&serveNoWorker, "no-worker", false, "do not consume storage notifications")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	auth, err := httpapi.NewAuthenticator(ctx, httpapi.AuthConfig{
		Issuer:        cfg.Auth.Issuer,
		Audiences:     cfg.Auth.Audiences,
		TrustUpstream: cfg.Auth.TrustUpstream,
		Disabled:      cfg.Auth.Disabled,
	})
	if err != nil {
		return fmt.Errorf("configuring auth: %w", err)
	}
	server, err := httpapi.NewServer(app.HTTPServices(), auth)
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, addr, cfg.Server.ReadHeaderTimeout.D())
	})
	if !serveNoWorker {
		worker := app.EventWorker()
		g.Go(func() error { return worker.Start(gctx) })
	}
	return g.Wait()
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	worker := app.EventWorker()
	err := worker.Start(ctx)
	handled, failed := worker.Stats()
	logger.Info("Worker stopped: %d events handled, %d failed", handled, failed)
	return err
}
