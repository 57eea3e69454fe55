// Command gpxctl imports, lists and uploads GPX tracks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"gpx-track-server/cmd/gpxctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
