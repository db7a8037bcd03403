package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(msg))
}

// handleDashboardError maps domain errors on the HTML dashboard route to
// plain-text responses.
func handleDashboardError(w http.ResponseWriter, siteID string, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var forbidden *domain.ErrForbidden
	var persistence *domain.ErrPersistence

	switch {
	case errors.As(err, &notFound):
		logger.Debug("dashboard for unknown business", zap.String("site_id", siteID))
		writeText(w, http.StatusNotFound, `Unknown business for siteId "`+siteID+`".`)
	case errors.As(err, &forbidden):
		// Wrong tokens are expected traffic, not anomalies.
		logger.Debug("dashboard access denied", zap.String("site_id", siteID))
		writeText(w, http.StatusForbidden, "Access denied. Invalid token for this business.")
	case errors.As(err, &persistence):
		logger.Error("lead ledger unreadable", zap.String("site_id", siteID), zap.Error(err))
		writeText(w, http.StatusInternalServerError, "Leads for this business could not be read.")
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "internal server error")
	}
}
