package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gpx-track-server/internal/cli/client"
	"gpx-track-server/internal/cli/discover"
	"gpx-track-server/internal/cli/prompt"
	"gpx-track-server/pkg/queue"

	"github.com/spf13/cobra"
)

var (
	pushServer  string
	pushAPIKey  string
	pushYes     bool
	pushWait    bool
	pushRetries int
)

var pushCmd = &cobra.Command{
	Use:   "push <path|glob>...",
	Short: "Upload GPX files to a running server",
	Long: `Upload GPX files to a running track server in one request.

Large selections are confirmed locally and then sent with confirm=true.
Transient failures (5xx, connection errors) are retried.

Examples:
  # Upload a directory to a local server
  gpxctl push ./tracks

  # Upload to a remote server and follow the load progress
  gpxctl push --server https://maps.example.com --api-key $API_KEY --wait '**/*.gpx'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPush,
}

func init() {
	pushCmd.Flags().StringVar(&pushServer, "server", envOr("GPX_SERVER", "http://localhost:8081"), "Server base URL")
	pushCmd.Flags().StringVar(&pushAPIKey, "api-key", "", "API key (default: API_KEY)")
	pushCmd.Flags().BoolVarP(&pushYes, "yes", "y", false, "Skip the bulk upload confirmation")
	pushCmd.Flags().BoolVarP(&pushWait, "wait", "w", false, "Follow the server's progress until loading finishes")
	pushCmd.Flags().IntVar(&pushRetries, "retries", 4, "Retries for transient failures")
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	found, err := discover.Expand(args)
	if err != nil {
		return err
	}
	if len(found.Accepted) == 0 {
		fmt.Fprintln(out, queue.NoticeNoAcceptedFiles)
		return nil
	}

	confirm := len(found.Accepted) > cfg.ConfirmThreshold
	if confirm && !pushYes {
		ok, err := prompt.Confirm(prompt.ImportLabel(len(found.Accepted)), false)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Upload cancelled.")
			return nil
		}
	}

	apiKey := pushAPIKey
	if apiKey == "" {
		apiKey = cfg.APIKey
	}
	c := client.New(pushServer, client.Options{
		APIKey:   apiKey,
		RetryMax: pushRetries,
		Logger:   log.Named("http"),
	})

	res, err := c.Upload(ctx, found.Accepted, confirm)
	if errors.Is(err, client.ErrConfirmationRequired) {
		return fmt.Errorf("%w; the server threshold is lower than %d, retry with --yes", err, cfg.ConfirmThreshold)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Queued %d of %d files (run %d)\n", res.Accepted, res.Received, res.Progress.Run)

	if !pushWait {
		return nil
	}
	return followProgress(ctx, c, out)
}

func followProgress(ctx context.Context, c *client.Client, out io.Writer) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case <-ticker.C:
		}

		p, err := c.Progress(ctx)
		if err != nil {
			return err
		}
		if p.Text != "" {
			fmt.Fprintf(out, "\r%s (%.0f%%)", p.Text, p.Percent)
		}
		if !p.Active {
			fmt.Fprintf(out, "\nLoaded %d, failed %d\n", p.Succeeded, p.Failed)
			return nil
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
