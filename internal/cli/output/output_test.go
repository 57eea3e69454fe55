package output

import (
	"bytes"
	"testing"
	"time"

	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"

	"github.com/stretchr/testify/assert"
)

func TestTrackListTable(t *testing.T) {
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	end := start.Add(2*time.Hour + 5*time.Minute)
	tracks := TrackList{
		&models.Track{ID: "track-1", Name: "Lake Loop", Visible: true, DistanceKm: 12.34, ElevationGainM: 450.4,
			StartTime: &start, EndTime: &end, PointCount: 1200, SizeBytes: 2048},
		&models.Track{ID: "track-2", Name: "Ridge", DistanceKm: 3},
	}

	rows := tracks.Rows()
	assert.Equal(t, []string{"track-1", "Lake Loop", "yes", "12.3 km", "450 m", "2h 5m", "1,200", "2.0 KiB"}, rows[0])
	assert.Equal(t, "no", rows[1][2])
	assert.Equal(t, "-", rows[1][5])

	var buf bytes.Buffer
	PrintTable(&buf, tracks)
	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "Lake Loop")
	assert.Contains(t, out, "track-2")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, [][2]string{{"Loaded", "3"}, {"Failed", "1"}})
	assert.Contains(t, buf.String(), "Loaded")
	assert.Contains(t, buf.String(), "Failed")
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	pp := NewProgressPrinter(&buf)

	pp.Enqueued(0, queue.Progress{})
	assert.Empty(t, buf.String())

	pp.Enqueued(10, queue.Progress{Total: 10})
	pp.BatchDone(5, queue.Progress{Processed: 5, Total: 10})
	pp.Drained(queue.Progress{Processed: 10, Total: 10})
	pp.Notice(queue.NoticeNoAcceptedFiles)

	out := buf.String()
	assert.Contains(t, out, "\rProcessing files: 0/10 (0%)")
	assert.Contains(t, out, "\rProcessing files: 5/10 (50%)")
	assert.Contains(t, out, "\rProcessing files: 10/10 (100%)\n")
	assert.Contains(t, out, queue.NoticeNoAcceptedFiles+"\n")
}

var _ queue.Sink = (*ProgressPrinter)(nil)
var _ TableRenderer = TrackList(nil)
