package handler

import (
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"path/filepath"
	"strings"

	"github.com/dukerupert/cohabit/internal/docx"
	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/store"
)

const maxTemplateUpload = 20 << 20

// AdminHandler serves the operator endpoints. Routes are wrapped in
// middleware.RequireAdmin.
type AdminHandler struct {
	templateStore  *store.TemplateStore
	lawyerStore    *store.LawyerStore
	couponStore    *store.CouponStore
	affiliateStore *store.AffiliateStore
	contractStore  *store.ContractStore
	logger         *slog.Logger
}

func NewAdminHandler(
	ts *store.TemplateStore,
	ls *store.LawyerStore,
	coupons *store.CouponStore,
	affiliates *store.AffiliateStore,
	cs *store.ContractStore,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		templateStore:  ts,
		lawyerStore:    ls,
		couponStore:    coupons,
		affiliateStore: affiliates,
		contractStore:  cs,
		logger:         logger,
	}
}

func (h *AdminHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := h.templateStore.List()
	if err != nil {
		h.logger.Error("list templates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list templates")
		return
	}
	if templates == nil {
		templates = []model.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

// UploadTemplate stores a multipart-uploaded .docx. The file must open as a
// Word document; tag errors only surface when a document is rendered.
func (h *AdminHandler) UploadTemplate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTemplateUpload)
	if err := r.ParseMultipartForm(maxTemplateUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".docx") {
		writeError(w, http.StatusBadRequest, "template must be a .docx file")
		return
	}
	if _, err := docx.PlainText(data); err != nil {
		writeError(w, http.StatusBadRequest, "file is not a valid .docx document")
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	tpl, err := h.templateStore.Create(name, header.Filename, data)
	if err != nil {
		h.logger.Error("create template", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store template")
		return
	}

	if r.FormValue("activate") == "true" {
		if err := h.templateStore.Activate(tpl.ID); err != nil {
			h.logger.Error("activate template", "id", tpl.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to activate template")
			return
		}
		tpl.IsActive = true
	}
	h.logger.Info("template uploaded", "id", tpl.ID, "size", tpl.Size, "active", tpl.IsActive)
	writeJSON(w, http.StatusCreated, tpl)
}

func (h *AdminHandler) ActivateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	err = h.templateStore.Activate(id)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}
	if err != nil {
		h.logger.Error("activate template", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to activate template")
		return
	}
	tpl, err := h.templateStore.GetByID(id)
	if err != nil || tpl == nil {
		writeError(w, http.StatusInternalServerError, "failed to get template")
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

var validLawyerParty = map[string]bool{
	model.LawyerPartyUser:    true,
	model.LawyerPartyPartner: true,
	model.LawyerPartyBoth:    true,
}

type lawyerRequest struct {
	Name  string `json:"name"`
	Firm  string `json:"firm"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Party string `json:"party"`
}

func (req *lawyerRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return "name is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "a valid email is required"
	}
	if req.Party == "" {
		req.Party = model.LawyerPartyBoth
	}
	if !validLawyerParty[req.Party] {
		return "party must be user, partner, or both"
	}
	return ""
}

func (h *AdminHandler) ListLawyers(w http.ResponseWriter, r *http.Request) {
	lawyers, err := h.lawyerStore.List(false, "")
	if err != nil {
		h.logger.Error("list lawyers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list lawyers")
		return
	}
	if lawyers == nil {
		lawyers = []model.Lawyer{}
	}
	writeJSON(w, http.StatusOK, lawyers)
}

func (h *AdminHandler) CreateLawyer(w http.ResponseWriter, r *http.Request) {
	var req lawyerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	l, err := h.lawyerStore.Create(req.Name, req.Firm, req.Email, req.Phone, req.Party)
	if err != nil {
		h.logger.Error("create lawyer", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create lawyer")
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *AdminHandler) UpdateLawyer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	var req lawyerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	l, err := h.lawyerStore.Update(id, req.Name, req.Firm, req.Email, req.Phone, req.Party)
	if err != nil {
		h.logger.Error("update lawyer", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update lawyer")
		return
	}
	if l == nil {
		writeError(w, http.StatusNotFound, "lawyer not found")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *AdminHandler) DeactivateLawyer(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.lawyerStore.Deactivate(id); err != nil {
		h.logger.Error("deactivate lawyer", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate lawyer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.couponStore.List()
	if err != nil {
		h.logger.Error("list coupons", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list coupons")
		return
	}
	if coupons == nil {
		coupons = []model.CouponCode{}
	}
	writeJSON(w, http.StatusOK, coupons)
}

type couponRequest struct {
	Code       string `json:"code"`
	PercentOff int    `json:"percent_off"`
	MaxUses    *int   `json:"max_uses"`
}

func (h *AdminHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.PercentOff < 1 || req.PercentOff > 100 {
		writeError(w, http.StatusBadRequest, "percent_off must be between 1 and 100")
		return
	}
	if req.MaxUses != nil && *req.MaxUses < 1 {
		writeError(w, http.StatusBadRequest, "max_uses must be positive")
		return
	}
	existing, err := h.couponStore.GetByCode(req.Code)
	if err != nil {
		h.logger.Error("get coupon", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create coupon")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "coupon code already exists")
		return
	}
	c, err := h.couponStore.Create(req.Code, req.PercentOff, req.MaxUses)
	if err != nil {
		h.logger.Error("create coupon", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create coupon")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *AdminHandler) DeactivateCoupon(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.couponStore.Deactivate(id); err != nil {
		h.logger.Error("deactivate coupon", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate coupon")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListAffiliates(w http.ResponseWriter, r *http.Request) {
	links, err := h.affiliateStore.List()
	if err != nil {
		h.logger.Error("list affiliates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list affiliate links")
		return
	}
	if links == nil {
		links = []model.AffiliateLink{}
	}
	writeJSON(w, http.StatusOK, links)
}

type affiliateRequest struct {
	Code              string `json:"code"`
	OwnerName         string `json:"owner_name"`
	OwnerEmail        string `json:"owner_email"`
	CommissionPercent int    `json:"commission_percent"`
}

func (h *AdminHandler) CreateAffiliate(w http.ResponseWriter, r *http.Request) {
	var req affiliateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Code = strings.ToLower(strings.TrimSpace(req.Code))
	if req.Code == "" || strings.ContainsAny(req.Code, " /?#") {
		writeError(w, http.StatusBadRequest, "code must be a single URL-safe word")
		return
	}
	if strings.TrimSpace(req.OwnerName) == "" {
		writeError(w, http.StatusBadRequest, "owner_name is required")
		return
	}
	if req.CommissionPercent < 0 || req.CommissionPercent > 100 {
		writeError(w, http.StatusBadRequest, "commission_percent must be between 0 and 100")
		return
	}
	existing, err := h.affiliateStore.GetByCode(req.Code)
	if err != nil {
		h.logger.Error("get affiliate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create affiliate link")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "affiliate code already exists")
		return
	}
	link, err := h.affiliateStore.Create(req.Code, req.OwnerName, req.OwnerEmail, req.CommissionPercent)
	if err != nil {
		h.logger.Error("create affiliate", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create affiliate link")
		return
	}
	writeJSON(w, http.StatusCreated, link)
}

func (h *AdminHandler) DeactivateAffiliate(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := h.affiliateStore.Deactivate(id); err != nil {
		h.logger.Error("deactivate affiliate", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate affiliate link")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Report summarises sales with per-coupon and per-affiliate totals.
func (h *AdminHandler) Report(w http.ResponseWriter, r *http.Request) {
	count, revenue, err := h.contractStore.SalesTotals()
	if err != nil {
		h.logger.Error("sales totals", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	coupons, err := h.couponStore.List()
	if err != nil {
		h.logger.Error("list coupons", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	links, err := h.affiliateStore.List()
	if err != nil {
		h.logger.Error("list affiliates", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	if coupons == nil {
		coupons = []model.CouponCode{}
	}
	if links == nil {
		links = []model.AffiliateLink{}
	}
	writeJSON(w, http.StatusOK, model.SalesReport{
		PaidContracts: count,
		RevenueCents:  revenue,
		Coupons:       coupons,
		Affiliates:    links,
	})
}
