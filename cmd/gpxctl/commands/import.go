package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gpx-track-server/internal/cli/discover"
	"gpx-track-server/internal/cli/output"
	"gpx-track-server/internal/cli/prompt"
	"gpx-track-server/pkg/gpxload"
	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"
	"gpx-track-server/pkg/storage"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importYes    bool
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import <path|glob>...",
	Short: "Load GPX files into the local registry",
	Long: `Load GPX files into the local track registry.

Arguments may be files, directories (walked recursively) or glob patterns
with ** support. Files without the .gpx extension are skipped. Selections
larger than UPLOAD_CONFIRM_THRESHOLD ask for confirmation.

Examples:
  # Import a single directory
  gpxctl import ~/tracks

  # Import every GPX file below a directory without asking
  gpxctl import '~/tracks/**/*.gpx' --yes

  # Parse files without writing anything
  gpxctl import --dry-run ./incoming`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVarP(&importYes, "yes", "y", false, "Skip the bulk import confirmation")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Load into an in-memory registry that is discarded")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	out := cmd.OutOrStdout()

	found, err := discover.Expand(args)
	if err != nil {
		return err
	}
	for _, path := range found.Skipped {
		log.Debug("Skipping non-GPX file", zap.String("path", path))
	}

	var store *storage.BadgerStorage
	if importDryRun {
		store, err = storage.NewBadgerStorage(storage.BadgerOptions{InMemory: true, Logger: log})
	} else {
		store, err = openStore(cfg, log)
	}
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	loader := gpxload.NewLoader(store, gpxload.VisibilityPolicy{
		BulkThreshold: cfg.BulkThreshold,
		VisibleLimit:  cfg.VisibleLimit,
	}, log.Named("loader"))

	processor, err := queue.NewProcessor(loadPath(loader), queue.Options{
		BatchSize:        cfg.BatchSize,
		ConfirmThreshold: cfg.ConfirmThreshold,
		StepDelay:        cfg.StepDelay,
		ItemTimeout:      cfg.ItemTimeout,
	}, queue.MultiSink{
		output.NewProgressPrinter(out),
		queue.NewLogSink(log.Named("queue")),
	}, log.Named("queue"))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	_, err = processor.Enqueue(ctx, found.Accepted, prompt.BulkImport(importYes))
	switch {
	case errors.Is(err, queue.ErrNoAcceptedFiles):
		// the progress printer already showed the notice
		return nil
	case errors.Is(err, queue.ErrNotConfirmed):
		fmt.Fprintln(out, "Import cancelled.")
		return nil
	case err != nil:
		return err
	}

	if err := processor.WaitIdle(ctx); err != nil {
		p := processor.Progress()
		fmt.Fprintf(out, "\nInterrupted: %d of %d files not loaded\n", p.Remaining(), p.Total)
		return err
	}

	p := processor.Progress()
	visible := true
	output.PrintSummary(out, [][2]string{
		{"Loaded", humanize.Comma(int64(p.Succeeded))},
		{"Failed", humanize.Comma(int64(p.Failed))},
		{"Skipped", humanize.Comma(int64(len(found.Skipped)))},
		{"Registry tracks", humanize.Comma(int64(store.Count()))},
		{"Visible tracks", humanize.Comma(int64(store.CountWithFilter(&storage.TrackFilter{Visible: &visible})))},
		{"Elapsed", p.Elapsed().Round(time.Millisecond).String()},
	})
	if p.Failed > 0 {
		return fmt.Errorf("%d files could not be loaded", p.Failed)
	}
	return nil
}

// loadPath reads a file from disk only when its batch comes up.
func loadPath(loader *gpxload.Loader) queue.LoadFunc[string] {
	return func(ctx context.Context, path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return loader.Load(ctx, models.TrackFile{
			Name:       filepath.Base(path),
			Data:       data,
			ReceivedAt: time.Now(),
		})
	}
}
