package commands

import (
	"fmt"
	"strconv"

	"gpx-track-server/internal/cli/output"
	"gpx-track-server/pkg/storage"

	"github.com/spf13/cobra"
)

var (
	listSearch  string
	listVisible string
	listLimit   int
	listOffset  int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracks in the local registry",
	Long: `List tracks in the local track registry in insertion order.

The registry is locked while a server uses it; stop the server or use
the HTTP API instead.

Examples:
  # List every track
  gpxctl list

  # Tracks whose name contains "alps", hidden ones only
  gpxctl list --search alps --visible=false`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Case-insensitive name filter")
	listCmd.Flags().StringVar(&listVisible, "visible", "", "Filter by visibility (true or false)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Maximum number of tracks (0 lists all)")
	listCmd.Flags().IntVar(&listOffset, "offset", 0, "Number of matching tracks to skip")
}

func runList(cmd *cobra.Command, args []string) error {
	filter := &storage.TrackFilter{Search: listSearch}
	if listVisible != "" {
		v, err := strconv.ParseBool(listVisible)
		if err != nil {
			return fmt.Errorf("invalid --visible value %q", listVisible)
		}
		filter.Visible = &v
	}

	cfg := loadConfig()
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	total := store.CountWithFilter(filter)
	limit := listLimit
	if limit <= 0 {
		limit = max(total, 1)
	}
	tracks, err := store.List(limit, listOffset, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(tracks) == 0 {
		fmt.Fprintln(out, "No tracks found.")
		return nil
	}
	output.PrintTable(out, output.TrackList(tracks))
	fmt.Fprintf(out, "\n%d of %d tracks\n", len(tracks), total)
	return nil
}
