package handler

import (
	"database/sql"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/store"
)

type ContractHandler struct {
	contractStore *store.ContractStore
	lawyerStore   *store.LawyerStore
	logger        *slog.Logger
}

func NewContractHandler(cs *store.ContractStore, ls *store.LawyerStore, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{contractStore: cs, lawyerStore: ls, logger: logger}
}

var validAgreementTypes = map[string]bool{
	model.AgreementCohabitation: true,
	model.AgreementPrenuptial:   true,
	model.AgreementPostnuptial:  true,
}

var validResidence = map[string]bool{
	"":                         true,
	model.ResidenceUserOwns:    true,
	model.ResidencePartnerOwns: true,
	model.ResidenceJoint:       true,
	model.ResidenceRenting:     true,
}

var validExpenseSplit = map[string]bool{
	"":                        true,
	model.ExpenseEqual:        true,
	model.ExpenseProportional: true,
	model.ExpenseSeparate:     true,
}

// contractRequest holds the fields a customer may edit.
type contractRequest struct {
	AgreementType      string         `json:"agreement_type"`
	User               model.Party    `json:"user"`
	Partner            model.Party    `json:"partner"`
	CohabitationDate   model.Date     `json:"cohabitation_date"`
	MarriageDate       model.Date     `json:"marriage_date"`
	ResidenceOwnership string         `json:"residence_ownership"`
	ExpenseSplit       string         `json:"expense_split"`
	Children           []model.Child  `json:"children"`
	ScheduleA          model.Schedule `json:"schedule_a"`
	ScheduleB          model.Schedule `json:"schedule_b"`
}

func (req *contractRequest) validate() string {
	if req.AgreementType == "" {
		req.AgreementType = model.AgreementCohabitation
	}
	if !validAgreementTypes[req.AgreementType] {
		return "agreement_type must be cohabitation, prenuptial, or postnuptial"
	}
	if !validResidence[req.ResidenceOwnership] {
		return "residence_ownership must be user_owns, partner_owns, joint, or renting"
	}
	if !validExpenseSplit[req.ExpenseSplit] {
		return "expense_split must be equal, proportional, or separate"
	}
	return ""
}

func (req contractRequest) apply(c *model.Contract) {
	c.AgreementType = req.AgreementType
	c.User = req.User
	c.Partner = req.Partner
	c.CohabitationDate = req.CohabitationDate
	c.MarriageDate = req.MarriageDate
	c.ResidenceOwnership = req.ResidenceOwnership
	c.ExpenseSplit = req.ExpenseSplit
	c.Children = req.Children
	c.ScheduleA = req.ScheduleA
	c.ScheduleB = req.ScheduleB
}

// loadOwned fetches the contract named in the path for the caller, writing
// the error response itself when it returns nil.
func (h *ContractHandler) loadOwned(w http.ResponseWriter, r *http.Request) *model.Contract {
	ac, ok := requireAuth(w, r)
	if !ok {
		return nil
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return nil
	}
	c, err := h.contractStore.GetForOwner(id, ac.UserID, ac.TeamID)
	if err != nil {
		h.logger.Error("get contract", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get contract")
		return nil
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contract not found")
		return nil
	}
	return c
}

func (h *ContractHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	contracts, err := h.contractStore.ListForOwner(ac.UserID, ac.TeamID)
	if err != nil {
		h.logger.Error("list contracts", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list contracts")
		return
	}
	if contracts == nil {
		contracts = []model.Contract{}
	}
	writeJSON(w, http.StatusOK, contracts)
}

func (h *ContractHandler) Create(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	var req contractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	var c model.Contract
	req.apply(&c)
	created, err := h.contractStore.Create(ac.UserID, ac.TeamID, &c)
	if err != nil {
		h.logger.Error("create contract", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create contract")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ContractHandler) Get(w http.ResponseWriter, r *http.Request) {
	c := h.loadOwned(w, r)
	if c == nil {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Current returns the contract the user is working on.
func (h *ContractHandler) Current(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	c, err := h.contractStore.GetCurrent(ac.UserID)
	if err != nil {
		h.logger.Error("get current contract", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get contract")
		return
	}
	if c == nil || c.TeamID != ac.TeamID {
		writeError(w, http.StatusNotFound, "no current contract")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ContractHandler) Update(w http.ResponseWriter, r *http.Request) {
	c := h.loadOwned(w, r)
	if c == nil {
		return
	}
	var req contractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	req.apply(c)
	updated, err := h.contractStore.Update(c)
	if errors.Is(err, store.ErrIdentityLocked) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("update contract", "id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update contract")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ContractHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	c := h.loadOwned(w, r)
	if c == nil {
		return
	}
	err := h.contractStore.SetCurrent(c.ID, c.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	if err != nil {
		h.logger.Error("set current contract", "id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set current contract")
		return
	}
	c.IsCurrentContract = true
	writeJSON(w, http.StatusOK, c)
}

func (h *ContractHandler) AcceptTerms(w http.ResponseWriter, r *http.Request) {
	c := h.loadOwned(w, r)
	if c == nil {
		return
	}
	if err := h.contractStore.AcceptTerms(c.ID); err != nil {
		h.logger.Error("accept terms", "id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept terms")
		return
	}
	c.TermsAccepted = true
	writeJSON(w, http.StatusOK, c)
}

type lawyersRequest struct {
	UserLawyerID    *int64 `json:"user_lawyer_id"`
	PartnerLawyerID *int64 `json:"partner_lawyer_id"`
}

// AssignLawyers records the lawyer chosen for each side. Each lawyer must be
// active and able to act for that side, and the two sides need different
// lawyers.
func (h *ContractHandler) AssignLawyers(w http.ResponseWriter, r *http.Request) {
	c := h.loadOwned(w, r)
	if c == nil {
		return
	}
	var req lawyersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UserLawyerID != nil && req.PartnerLawyerID != nil && *req.UserLawyerID == *req.PartnerLawyerID {
		writeError(w, http.StatusBadRequest, "each party needs a different lawyer")
		return
	}

	for _, pick := range []struct {
		id   *int64
		side string
	}{
		{req.UserLawyerID, model.LawyerPartyUser},
		{req.PartnerLawyerID, model.LawyerPartyPartner},
	} {
		if pick.id == nil {
			continue
		}
		l, err := h.lawyerStore.GetByID(*pick.id)
		if err != nil {
			h.logger.Error("get lawyer", "id", *pick.id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get lawyer")
			return
		}
		if l == nil || !l.Active {
			writeError(w, http.StatusBadRequest, "lawyer not found")
			return
		}
		if !l.CanRepresent(pick.side) {
			writeError(w, http.StatusBadRequest, "lawyer cannot act for the "+pick.side)
			return
		}
	}

	if err := h.contractStore.AssignLawyers(c.ID, req.UserLawyerID, req.PartnerLawyerID); err != nil {
		h.logger.Error("assign lawyers", "id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to assign lawyers")
		return
	}
	c.UserLawyerID = req.UserLawyerID
	c.PartnerLawyerID = req.PartnerLawyerID
	writeJSON(w, http.StatusOK, c)
}

// ListLawyers returns active lawyers, optionally those who can act for one side.
func (h *ContractHandler) ListLawyers(w http.ResponseWriter, r *http.Request) {
	party := r.URL.Query().Get("party")
	if party != "" && party != model.LawyerPartyUser && party != model.LawyerPartyPartner {
		writeError(w, http.StatusBadRequest, "party must be user or partner")
		return
	}
	lawyers, err := h.lawyerStore.List(true, party)
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
