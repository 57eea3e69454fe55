// Package output renders gpxctl results on the terminal.
package output

import (
	"io"

	"gpx-track-server/pkg/models"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by types that can render themselves as a table.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// PrintTable writes data as a borderless, left aligned table.
func PrintTable(w io.Writer, data TableRenderer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(data.Headers())

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(data.Rows())
	table.Render()
}

// TrackList is a list of tracks for table rendering.
type TrackList []*models.Track

// Headers implements TableRenderer.
func (tl TrackList) Headers() []string {
	return []string{"ID", "NAME", "VISIBLE", "DISTANCE", "ELEVATION", "DURATION", "POINTS", "SIZE"}
}

// Rows implements TableRenderer.
func (tl TrackList) Rows() [][]string {
	rows := make([][]string, 0, len(tl))
	for _, t := range tl {
		visible := "no"
		if t.Visible {
			visible = "yes"
		}
		duration := t.DurationText()
		if duration == "" {
			duration = "-"
		}
		rows = append(rows, []string{
			t.ID,
			t.Name,
			visible,
			t.DistanceText(),
			t.ElevationText(),
			duration,
			humanize.Comma(int64(t.PointCount)),
			humanize.IBytes(uint64(t.SizeBytes)),
		})
	}
	return rows
}

// PrintSummary writes key/value pairs without a header.
func PrintSummary(w io.Writer, pairs [][2]string) {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator(":")
	table.SetRowSeparator("")
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, pair := range pairs {
		table.Append([]string{pair[0], pair[1]})
	}
	table.Render()
}
