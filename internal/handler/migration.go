package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/faucetdb/safeshift/internal/migrator"
)

// Migrations is the subset of *migrator.SafeMigrator the HTTP API reads.
type Migrations interface {
	Status(ctx context.Context) ([]migrator.MigrationStatus, error)
	GetAffectedTables(file string) ([]string, error)
	EstimateDataLoss(ctx context.Context, file string) ([]migrator.DataLoss, error)
}

// MigrationHandler serves migration status and impact reports.
type MigrationHandler struct {
	migrations Migrations
	logger     *slog.Logger
}

// NewMigrationHandler creates a MigrationHandler.
func NewMigrationHandler(m Migrations, logger *slog.Logger) *MigrationHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MigrationHandler{migrations: m, logger: logger}
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Migrations []migrator.MigrationStatus `json:"migrations"`
	Ran        int                        `json:"ran"`
	Pending    int                        `json:"pending"`
	Missing    int                        `json:"missing"`
}

// Status handles GET /api/v1/status.
func (h *MigrationHandler) Status(w http.ResponseWriter, r *http.Request) {
	rows, err := h.migrations.Status(r.Context())
	if err != nil {
		h.logger.Error("migration status failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to read migration status: "+err.Error())
		return
	}

	resp := StatusResponse{Migrations: rows}
	if resp.Migrations == nil {
		resp.Migrations = []migrator.MigrationStatus{}
	}
	for _, row := range rows {
		switch {
		case row.Missing:
			resp.Missing++
		case row.Ran:
			resp.Ran++
		default:
			resp.Pending++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ImpactResponse is the body of GET /api/v1/migrations/{name}/impact.
type ImpactResponse struct {
	Migration  string              `json:"migration"`
	Affected   []string            `json:"affected"`
	DataLoss   []migrator.DataLoss `json:"data_loss"`
	RowsAtRisk int64               `json:"rows_at_risk"`
}

// Impact handles GET /api/v1/migrations/{name}/impact.
func (h *MigrationHandler) Impact(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		writeError(w, http.StatusBadRequest, "Invalid migration name", map[string]interface{}{"migration": name})
		return
	}

	affected, err := h.migrations.GetAffectedTables(name)
	if err != nil {
		h.writeMigrationError(w, name, err)
		return
	}
	loss, err := h.migrations.EstimateDataLoss(r.Context(), name)
	if err != nil {
		h.writeMigrationError(w, name, err)
		return
	}

	resp := ImpactResponse{
		Migration: migrator.MigrationName(name),
		Affected:  affected,
		DataLoss:  loss,
	}
	if resp.DataLoss == nil {
		resp.DataLoss = []migrator.DataLoss{}
	}
	for _, l := range loss {
		resp.RowsAtRisk += l.Rows
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *MigrationHandler) writeMigrationError(w http.ResponseWriter, name string, err error) {
	if errors.Is(err, migrator.ErrMigrationNotFound) {
		writeError(w, http.StatusNotFound, err.Error(), map[string]interface{}{"migration": name})
		return
	}
	h.logger.Error("migration impact failed", "migration", name, "error", err)
	writeError(w, http.StatusInternalServerError, "Failed to estimate impact: "+err.Error())
}
