package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/faucetdb/safeshift/internal/drift"
	"github.com/faucetdb/safeshift/internal/snapshot"
)

// DriftChecker is the subset of *drift.Checker the HTTP API reads.
type DriftChecker interface {
	Check(ctx context.Context) (*drift.Report, error)
}

// DriftHandler serves drift reports.
type DriftHandler struct {
	checker DriftChecker
	logger  *slog.Logger
}

// NewDriftHandler creates a DriftHandler.
func NewDriftHandler(c DriftChecker, logger *slog.Logger) *DriftHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriftHandler{checker: c, logger: logger}
}

// Check handles GET /api/v1/drift. With ?summary=true the raw diff is
// omitted and only the classified items are returned.
func (h *DriftHandler) Check(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.Check(r.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("drift check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to check drift: "+err.Error())
		return
	}

	drifted := report.HasDrift()
	if queryBool(r, "summary") {
		report.Diff = nil
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"drift":  drifted,
		"report": report,
	})
}
