package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/graftloss/internal/domain/types"
)

// ImportanceDependencies defines the interface for importance reads.
type ImportanceDependencies interface {
	Importance(ctx context.Context, limit int) ([]types.ImportanceRow, error)
}

// ImportanceHandler handles importance requests.
type ImportanceHandler struct {
	deps     ImportanceDependencies
	maxLimit int
}

// NewImportanceHandler creates a new importance handler.
func NewImportanceHandler(deps ImportanceDependencies, maxLimit int) *ImportanceHandler {
	return &ImportanceHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleImportance handles GET /importance?limit=N requests. Without limit
// every feature is returned.
func (h *ImportanceHandler) HandleImportance(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_importance"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	n := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
			return
		}
		if n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
			return
		}
	}
	rows, err := h.deps.Importance(r.Context(), n)
	if err != nil {
		writeReadError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
