package queue

import (
	"path/filepath"
	"strings"
)

// HasExtension reports whether name ends in ext, ignoring case.
func HasExtension(name, ext string) bool {
	return strings.EqualFold(filepath.Ext(name), ext)
}

// FilterAccepted keeps the items whose name ends in ext (case-insensitive),
// preserving order.
func FilterAccepted[T any](items []T, name func(T) string, ext string) []T {
	accepted := make([]T, 0, len(items))
	for _, item := range items {
		if HasExtension(name(item), ext) {
			accepted = append(accepted, item)
		}
	}
	return accepted
}
