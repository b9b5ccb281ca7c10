package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/cohabit/internal/archive"
	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/email"
	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/store"
)

// Archiver keeps an encrypted copy of each delivered agreement.
type Archiver interface {
	Enabled() bool
	Put(ctx context.Context, contractID int64, pdf []byte) (*archive.Object, error)
}

type DeliveryHandler struct {
	generator     Generator
	contractStore *store.ContractStore
	userStore     *store.UserStore
	lawyerStore   *store.LawyerStore
	deliveryStore *store.DeliveryStore
	archiver      Archiver
	mailer        Mailer
	logger        *slog.Logger
}

func NewDeliveryHandler(
	gen Generator,
	cs *store.ContractStore,
	us *store.UserStore,
	ls *store.LawyerStore,
	ds *store.DeliveryStore,
	archiver Archiver,
	mailer Mailer,
	logger *slog.Logger,
) *DeliveryHandler {
	return &DeliveryHandler{
		generator:     gen,
		contractStore: cs,
		userStore:     us,
		lawyerStore:   ls,
		deliveryStore: ds,
		archiver:      archiver,
		mailer:        mailer,
		logger:        logger,
	}
}

type recipient struct {
	lawyer *model.Lawyer
	client string
	side   string
}

// Send generates the full agreement and emails it to each selected lawyer.
// When archive storage is configured an encrypted copy is stored first.
func (h *DeliveryHandler) Send(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("load user", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	c, err := h.contractStore.GetForOwner(id, ac.UserID, ac.TeamID)
	if err != nil {
		h.logger.Error("get contract", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get contract")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	if !c.IsPaid {
		writeError(w, http.StatusPaymentRequired, "payment required")
		return
	}

	recipients, err := h.recipients(c)
	if err != nil {
		h.logger.Error("load lawyers", "contract_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load lawyers")
		return
	}
	if len(recipients) == 0 {
		writeError(w, http.StatusBadRequest, "no lawyer selected")
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

	emails := make([]string, len(recipients))
	for i, rc := range recipients {
		emails[i] = rc.lawyer.Email
	}
	d, err := h.deliveryStore.Create(c.ID, emails)
	if err != nil {
		h.logger.Error("create delivery", "contract_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to record delivery")
		return
	}

	if h.archiver != nil && h.archiver.Enabled() {
		obj, err := h.archiver.Put(r.Context(), c.ID, res.PDF)
		if err != nil {
			h.fail(d.ID, err)
			h.logger.Error("archive agreement", "contract_id", c.ID, "error", err)
			writeError(w, http.StatusBadGateway, "failed to archive agreement")
			return
		}
		if err := h.deliveryStore.MarkArchived(d.ID, obj.Key, obj.Size); err != nil {
			h.logger.Error("mark delivery archived", "delivery_id", d.ID, "error", err)
		}
	}

	title := document.AgreementTitle(c.AgreementType)
	for _, rc := range recipients {
		err := h.mailer.SendLawyerReview(email.Review{
			LawyerName:  rc.lawyer.Name,
			LawyerEmail: rc.lawyer.Email,
			ClientName:  rc.client,
			PartyLabel:  "the " + rc.side,
			Title:       title,
			Filename:    res.Filename,
			PDF:         res.PDF,
		})
		if err != nil {
			h.fail(d.ID, err)
			h.logger.Error("email lawyer", "contract_id", c.ID, "lawyer_id", rc.lawyer.ID, "error", err)
			writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to email %s", rc.lawyer.Name))
			return
		}
	}

	if err := h.deliveryStore.MarkSent(d.ID); err != nil {
		h.logger.Error("mark delivery sent", "delivery_id", d.ID, "error", err)
	}
	h.logger.Info("agreement sent", "contract_id", c.ID, "delivery_id", d.ID, "recipients", len(recipients))

	sent, err := h.deliveryStore.GetByID(d.ID)
	if err != nil || sent == nil {
		sent = d
	}
	writeJSON(w, http.StatusOK, sent)
}

func (h *DeliveryHandler) fail(deliveryID int64, cause error) {
	if err := h.deliveryStore.MarkFailed(deliveryID, cause.Error()); err != nil {
		h.logger.Error("mark delivery failed", "delivery_id", deliveryID, "error", err)
	}
}

func (h *DeliveryHandler) recipients(c *model.Contract) ([]recipient, error) {
	var out []recipient
	for _, pick := range []struct {
		id     *int64
		client string
		side   string
	}{
		{c.UserLawyerID, c.User.FullName, model.LawyerPartyUser},
		{c.PartnerLawyerID, c.Partner.FullName, model.LawyerPartyPartner},
	} {
		if pick.id == nil {
			continue
		}
		l, err := h.lawyerStore.GetByID(*pick.id)
		if err != nil {
			return nil, err
		}
		if l == nil || !l.Active || l.Email == "" {
			continue
		}
		out = append(out, recipient{lawyer: l, client: pick.client, side: pick.side})
	}
	return out, nil
}

// List returns the delivery history of a contract, newest first.
func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	c, err := h.contractStore.GetForOwner(id, ac.UserID, ac.TeamID)
	if err != nil {
		h.logger.Error("get contract", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get contract")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "contract not found")
		return
	}
	deliveries, err := h.deliveryStore.ListForContract(c.ID, 50)
	if err != nil {
		h.logger.Error("list deliveries", "contract_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []model.Delivery{}
	}
	writeJSON(w, http.StatusOK, deliveries)
}
