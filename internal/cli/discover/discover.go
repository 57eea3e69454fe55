// Package discover expands command line paths and glob patterns into the
// GPX files a command should load.
package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gpx-track-server/pkg/gpxload"
	"gpx-track-server/pkg/queue"

	"github.com/bmatcuk/doublestar/v4"
)

// Result lists what a set of arguments expanded to.
type Result struct {
	// Accepted are .gpx files in argument order, without duplicates.
	Accepted []string
	// Skipped are matched files without the .gpx extension.
	Skipped []string
}

// Expand resolves each argument. Directories are walked recursively,
// patterns may use ** and are matched with doublestar, anything else is
// taken as a file path.
func Expand(args []string) (Result, error) {
	var (
		res  Result
		seen = make(map[string]bool)
	)
	add := func(path string) {
		path = filepath.Clean(path)
		if seen[path] {
			return
		}
		seen[path] = true
		if queue.HasExtension(path, gpxload.Extension) {
			res.Accepted = append(res.Accepted, path)
		} else {
			res.Skipped = append(res.Skipped, path)
		}
	}

	for _, arg := range args {
		paths, err := expandOne(arg)
		if err != nil {
			return res, err
		}
		for _, p := range paths {
			add(p)
		}
	}
	return res, nil
}

func expandOne(arg string) ([]string, error) {
	base, pattern := doublestar.SplitPattern(filepath.ToSlash(arg))
	if pattern != "" && hasMeta(pattern) {
		matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", arg, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no match for pattern: %s", arg)
		}
		slices.Sort(matches)
		paths := make([]string, len(matches))
		for i, m := range matches {
			paths[i] = filepath.Join(filepath.FromSlash(base), filepath.FromSlash(m))
		}
		return paths, nil
	}

	info, err := os.Stat(arg)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{arg}, nil
	}

	var paths []string
	err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

func hasMeta(pattern string) bool {
	return doublestar.ValidatePattern(pattern) && pattern != doublestar.EscapeMeta(pattern)
}
