package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><name>%s</name><trkseg>
    <trkpt lat="45.90" lon="6.10"><ele>500</ele></trkpt>
    <trkpt lat="45.95" lon="6.15"><ele>800</ele></trkpt>
  </trkseg></trk>
</gpx>`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flags are package globals; start every run from the defaults
	dataDir, verbose = "", false
	importYes, importDryRun = false, false
	listSearch, listVisible, listLimit, listOffset = "", "", 0, 0

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := ExecuteContext(context.Background())
	return out.String(), err
}

func fixtures(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(fixtureGPX, name)), 0o644))
	}
	return dir
}

func TestImportThenList(t *testing.T) {
	t.Setenv("BACKUP_DIR", t.TempDir())
	registry := t.TempDir()
	src := fixtures(t, "alps/col.gpx", "alps/pass.gpx", "coast.gpx")
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("x"), 0o644))

	out, err := run(t, "import", "--data-dir", registry, src)
	require.NoError(t, err)
	assert.Contains(t, out, "Processing files: 3/3")
	assert.Contains(t, out, "Loaded")

	out, err = run(t, "list", "--data-dir", registry)
	require.NoError(t, err)
	assert.Contains(t, out, "alps/col.gpx")
	assert.Contains(t, out, "coast.gpx")
	assert.Contains(t, out, "3 of 3 tracks")

	out, err = run(t, "list", "--data-dir", registry, "--search", "COAST")
	require.NoError(t, err)
	assert.Contains(t, out, "1 of 1 tracks")

	out, err = run(t, "list", "--data-dir", registry, "--visible=false")
	require.NoError(t, err)
	assert.Contains(t, out, "No tracks found.")
}

func TestImportBulkWithYes(t *testing.T) {
	t.Setenv("BACKUP_DIR", t.TempDir())
	names := make([]string, 30)
	for i := range names {
		names[i] = fmt.Sprintf("t%02d.gpx", i)
	}
	src := fixtures(t, names...)
	registry := t.TempDir()

	_, err := run(t, "import", "--yes", "--data-dir", registry, filepath.Join(src, "**", "*.gpx"))
	require.NoError(t, err)

	out, err := run(t, "list", "--data-dir", registry, "--visible=true")
	require.NoError(t, err)
	// more than 25 files in one drain: only the first 10 stay visible
	assert.Contains(t, out, "10 of 10 tracks")
}

func TestImportNoGPX(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("x"), 0o644))

	out, err := run(t, "import", "--dry-run", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No GPX files found in selection")
}

func TestListRejectsBadVisibility(t *testing.T) {
	_, err := run(t, "list", "--visible=maybe")
	assert.ErrorContains(t, err, "invalid --visible")
}
