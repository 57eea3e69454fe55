// Package prompt provides interactive terminal prompts for gpxctl.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gpx-track-server/pkg/queue"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user presses Ctrl+C.
var ErrAborted = errors.New("aborted")

// Confirm asks a yes/no question. An empty answer selects defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
	}

	result, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		// promptui reports "n" as ErrAbort
		if errors.Is(err, promptui.ErrAbort) {
			if result == "" {
				return defaultYes, nil
			}
			return false, nil
		}
		return false, err
	}

	answer := strings.ToLower(strings.TrimSpace(result))
	if answer == "" {
		return defaultYes, nil
	}
	return answer == "y" || answer == "yes", nil
}

// BulkImport returns the confirmer used for large selections. With
// assumeYes every burst is accepted without asking.
func BulkImport(assumeYes bool) queue.Confirmer {
	if assumeYes {
		return queue.Confirmed(true)
	}
	return queue.ConfirmFunc(func(_ context.Context, count int) (bool, error) {
		return Confirm(ImportLabel(count), false)
	})
}

// ImportLabel is the bulk confirmation question.
func ImportLabel(count int) string {
	return fmt.Sprintf("About to import %d files. Continue?", count)
}
