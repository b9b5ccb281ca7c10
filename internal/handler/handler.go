// Package handler implements the JSON API.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cohabit/internal/auth"
	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/docx"
	"github.com/dukerupert/cohabit/internal/email"
)

const maxJSONBody = 1 << 20

// Mailer sends the transactional emails the API needs.
type Mailer interface {
	SendAuthCode(toEmail, code string) error
	SendLawyerReview(r email.Review) error
	SendReceipt(toEmail string, contractID int64, amount string) error
}

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// requireAuth returns the caller's auth context or writes a 401.
func requireAuth(w http.ResponseWriter, r *http.Request) (auth.AuthContext, bool) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return ac, ok
}

// writeGenerateError maps a pipeline failure to its HTTP response.
func writeGenerateError(w http.ResponseWriter, logger *slog.Logger, contractID int64, err error) {
	var tplErr *docx.TemplateError
	var convErr *document.ConversionError

	switch {
	case errors.Is(err, document.ErrNoActiveTemplate):
		writeError(w, http.StatusServiceUnavailable, "no active template")
	case errors.Is(err, document.ErrContractNotFound):
		writeError(w, http.StatusNotFound, "contract not found")
	case errors.As(err, &tplErr):
		logger.Error("template error", "contract_id", contractID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error":  "template error",
			"detail": tplErr.Error(),
		})
	case errors.As(err, &convErr) && convErr.Unreachable:
		logger.Error("conversion service unreachable", "contract_id", contractID, "error", err)
		writeError(w, http.StatusBadGateway, "conversion service unreachable")
	case errors.As(err, &convErr):
		logger.Error("conversion failed", "contract_id", contractID, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":  "conversion failed",
			"status": convErr.Status,
			"detail": convErr.Body,
		})
	default:
		logger.Error("generate document", "contract_id", contractID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate document")
	}
}
