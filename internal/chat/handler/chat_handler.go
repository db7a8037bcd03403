// Package handler implements POST /chat, the widget's only endpoint.
//
// Request:
//
//	Content-Type: application/json
//	{"message": "My drain is clogged", "siteId": "demo-plumber", "history": [...]}
//
// Response (200 OK):
//
//	{"reply": "Sorry to hear that! What's your zip code?"}
//
// Errors use {"error": "..."}:
//   - 400 invalid JSON, empty message or a history turn with a bad role
//   - 502 the language model call failed
//   - 503 the language model circuit breaker is open
//
// An unknown siteId is not an error: the reply is a fixed fallback sentence.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boddenberg/leadchat-bfa-go/internal/chat/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/chat/service"
	maindomain "github.com/boddenberg/leadchat-bfa-go/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// tracer is the OpenTelemetry tracer for chat/handler.
var tracer = otel.Tracer("chat/handler")

// maxBodyBytes bounds the request body; history travels with every message.
const maxBodyBytes = 1 << 20

// ChatHandler returns the http.HandlerFunc for POST /chat.
// The handler only decodes and maps errors; ChatService does the work.
func ChatHandler(chatSvc *service.ChatService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /chat")
		defer span.End()

		var req domain.ChatRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, `invalid request body: expected {"message": "...", "history": [], "siteId": "..."}`)
			return
		}
		span.SetAttributes(
			attribute.String("site.id", req.SiteID),
			attribute.Int("chat.history_len", len(req.History)),
		)

		resp, err := chatSvc.Handle(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleServiceError maps domain errors to HTTP status codes.
// Model failures are reported generically; details stay in the logs.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var validation *maindomain.ErrValidation
	var circuitOpen *maindomain.ErrCircuitOpen
	var external *maindomain.ErrExternalService

	switch {
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		if validation.Field == "message" {
			writeError(w, http.StatusBadRequest, "No message provided.")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &circuitOpen):
		writeError(w, http.StatusServiceUnavailable, "The assistant is temporarily unavailable. Please try again shortly.")
	case errors.As(err, &external):
		writeError(w, http.StatusBadGateway, "Something went wrong.")
	default:
		logger.Error("unexpected error in chat handler", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Something went wrong.")
	}
}
