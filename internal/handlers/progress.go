package handlers

import (
	"net/http"

	"gpx-track-server/pkg/models"
	"gpx-track-server/pkg/queue"

	"github.com/labstack/echo/v4"
)

// ProgressHandler serves the state of the upload progress display
type ProgressHandler struct {
	board *queue.Board
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(board *queue.Board) *ProgressHandler {
	return &ProgressHandler{board: board}
}

// GetProgress handles GET /api/v1/progress
func (h *ProgressHandler) GetProgress(c echo.Context) error {
	state := h.board.State()
	p := state.Progress

	return c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data: models.ProgressResponse{
			Visible:   state.Visible,
			Text:      state.Text,
			Processed: p.Processed,
			Total:     p.Total,
			Pending:   p.Pending,
			Succeeded: p.Succeeded,
			Failed:    p.Failed,
			Percent:   state.Percent,
			Active:    p.Active,
			Run:       p.Run,
			Notice:    state.Notice,
		},
	})
}
