package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/docpipe/internal/adapters/driving/watch"
	"github.com/custodia-labs/docpipe/internal/core/domain"
)

var (
	ingestSkipVectorize bool
	watchRemove         bool
)

var ingestCmd = needsApp(&cobra.Command{
	Use:   "ingest [file...]",
	Short: "Upload and process local files",
	Long: `Uploads each file to the intake bucket, runs extraction, chunking and
indexing in this process, then embeds the chunks. No storage notification
listener is required.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
})

var watchCmd = needsApp(&cobra.Command{
	Use:   "watch [dir]",
	Short: "Upload files dropped into a directory",
	Long: `Uploads existing and newly written files below dir to the intake bucket
and runs the event worker so each upload is processed.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
})

func init() {
	ingestCmd.Flags().BoolVar(&ingestSkipVectorize, "skip-vectorize", false, "stop after indexing, before embedding")
	watchCmd.Flags().BoolVar(&watchRemove, "remove", false, "delete local files once uploaded")
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
}

type ingestOutput struct {
	File      string                  `json:"file"`
	Result    *domain.IngestResult    `json:"result"`
	Vectorize *domain.VectorizeReport `json:"vectorize,omitempty"`
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	gw := app.Gateway.Config()

	out := make([]ingestOutput, 0, len(args))
	for _, arg := range args {
		p, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		w := watch.New(app.Blob, app.Ingestion, watch.Config{
			Dir:    filepath.Dir(p),
			Bucket: gw.IntakeBucket,
			Prefix: gw.SourcePrefix,
		})
		res, err := w.UploadFile(ctx, p)
		if err != nil {
			return fmt.Errorf("ingesting %s: %w", arg, err)
		}

		o := ingestOutput{File: arg, Result: res}
		if !ingestSkipVectorize && res.DocumentUUID != "" && res.Outcome == domain.OutcomeProcessed {
			if o.Vectorize, err = app.Vectorizer.VectorizeDocument(ctx, res.DocumentUUID, false); err != nil {
				return fmt.Errorf("vectorizing %s: %w", arg, err)
			}
		}
		out = append(out, o)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	gw := app.Gateway.Config()
	w := watch.New(app.Blob, nil, watch.Config{
		Dir:               dir,
		Bucket:            gw.IntakeBucket,
		Prefix:            gw.SourcePrefix,
		RemoveAfterUpload: watchRemove,
	})
	worker := app.EventWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(gctx) })
	g.Go(func() error {
		err := w.Run(gctx)
		stop()
		return err
	})
	return g.Wait()
}
