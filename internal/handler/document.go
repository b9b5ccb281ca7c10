package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/cohabit/internal/auth"
	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/store"
	"github.com/dukerupert/cohabit/internal/websocket"
)

// Generator produces agreement PDFs.
type Generator interface {
	Generate(ctx context.Context, req document.Request) (*document.Result, error)
}

type DocumentHandler struct {
	generator      Generator
	contractStore  *store.ContractStore
	userStore      *store.UserStore
	progress       document.ProgressStore
	hub            *websocket.Hub
	originPatterns []string
	logger         *slog.Logger
}

func NewDocumentHandler(
	gen Generator,
	cs *store.ContractStore,
	us *store.UserStore,
	progress document.ProgressStore,
	hub *websocket.Hub,
	originPatterns []string,
	logger *slog.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		generator:      gen,
		contractStore:  cs,
		userStore:      us,
		progress:       progress,
		hub:            hub,
		originPatterns: originPatterns,
		logger:         logger,
	}
}

// loadOwned returns the caller, the requested contract and its owner check,
// writing the error response itself when ok is false.
func (h *DocumentHandler) loadOwned(w http.ResponseWriter, r *http.Request) (auth.AuthContext, *model.User, *model.Contract, bool) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return ac, nil, nil, false
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return ac, nil, nil, false
	}
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("load user", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return ac, nil, nil, false
	}
	c, err := h.contractStore.GetForOwner(id, ac.UserID, ac.TeamID)
	if err != nil {
		h.logger.Error("get contract", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get contract")
		return ac, nil, nil, false
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contract not found")
		return ac, nil, nil, false
	}
	return ac, user, c, true
}

// Download serves the full agreement. Only paid contracts can be downloaded.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	ac, user, c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if !c.IsPaid {
		writeError(w, http.StatusPaymentRequired, "payment required")
		return
	}

	res, err := h.generator.Generate(r.Context(), document.Request{
		ContractID: c.ID,
		User:       user,
		TeamID:     ac.TeamID,
		Mode:       document.ModeFull,
	})
	if err != nil {
		writeGenerateError(w, h.logger, c.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PDF)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.PDF)
}

// Preview serves the first pages of the agreement, watermarked, for display
// in the browser. Previews are available before payment.
func (h *DocumentHandler) Preview(w http.ResponseWriter, r *http.Request) {
	ac, user, c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	res, err := h.generator.Generate(r.Context(), document.Request{
		ContractID: c.ID,
		User:       user,
		TeamID:     ac.TeamID,
		Mode:       document.ModePreview,
	})
	if err != nil {
		writeGenerateError(w, h.logger, c.ID, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", res.Filename))
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.PDF)))
	w.WriteHeader(http.StatusOK)
	w.Write(res.PDF)
}

type progressResponse struct {
	Percent int    `json:"percent"`
	Label   string `json:"label"`
}

func (h *DocumentHandler) current(ctx context.Context, contractID int64) progressResponse {
	if h.progress == nil {
		return progressResponse{Label: "Not started"}
	}
	p, ok, err := h.progress.Get(ctx, contractID)
	if err != nil {
		h.logger.Warn("get progress", "contract_id", contractID, "error", err)
	}
	if !ok {
		return progressResponse{Label: "Not started"}
	}
	return progressResponse{Percent: p.Percent, Label: p.Label}
}

// Progress reports the latest generation milestone for the contract.
func (h *DocumentHandler) Progress(w http.ResponseWriter, r *http.Request) {
	_, _, c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, h.current(r.Context(), c.ID))
}

// ProgressStream upgrades to a websocket that receives every milestone as
// it happens, starting with the current one.
func (h *DocumentHandler) ProgressStream(w http.ResponseWriter, r *http.Request) {
	_, _, c, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	if h.hub == nil {
		writeError(w, http.StatusNotImplemented, "live progress not available")
		return
	}

	cur := h.current(r.Context(), c.ID)
	snapshot, err := json.Marshal(struct {
		Type       string `json:"type"`
		ContractID int64  `json:"contract_id"`
		progressResponse
	}{"progress", c.ID, cur})
	if err != nil {
		h.logger.Error("marshal progress snapshot", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	websocket.Serve(h.hub, w, r, c.ID, snapshot, h.originPatterns)
}
