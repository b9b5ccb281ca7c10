package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/cohabit/internal/middleware"
	"github.com/dukerupert/cohabit/internal/model"
	"github.com/dukerupert/cohabit/internal/store"
)

const sessionMaxAge = 90 * 24 * 60 * 60

type AuthHandler struct {
	userStore    *store.UserStore
	teamStore    *store.TeamStore
	sessionStore *store.SessionStore
	loginCodes   *store.LoginCodeStore
	mailer       Mailer
	logger       *slog.Logger
}

func NewAuthHandler(
	us *store.UserStore,
	ts *store.TeamStore,
	ss *store.SessionStore,
	codes *store.LoginCodeStore,
	mailer Mailer,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		userStore:    us,
		teamStore:    ts,
		sessionStore: ss,
		loginCodes:   codes,
		mailer:       mailer,
		logger:       logger,
	}
}

type loginRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// Login emails a sign-in code. The response is the same whether or not the
// address has an account.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	lc, err := h.loginCodes.Issue(emailAddr)
	if err != nil {
		h.logger.Error("create auth code", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create sign-in code")
		return
	}
	if err := h.mailer.SendAuthCode(emailAddr, lc.Code); err != nil {
		h.logger.Error("send auth code", "email", emailAddr, "error", err)
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "code_sent"})
}

// Verify exchanges a valid code for a session. First-time users get an
// account and a personal team.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	emailAddr := strings.ToLower(strings.TrimSpace(req.Email))
	code := strings.TrimSpace(req.Code)

	if emailAddr == "" || code == "" {
		writeError(w, http.StatusBadRequest, "email and code are required")
		return
	}
	lc, err := h.loginCodes.Redeem(emailAddr, code)
	switch {
	case errors.Is(err, store.ErrCodeExpired), errors.Is(err, store.ErrCodeIncorrect), errors.Is(err, store.ErrTooManyAttempts):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		h.logger.Error("redeem auth code", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.userStore.GetByEmail(lc.Email)
	if err != nil {
		h.logger.Error("verify user lookup", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		user, err = h.userStore.Create(lc.Email, "")
		if err != nil {
			h.logger.Error("create user", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if _, err := h.teamStore.CreatePersonal(user.ID, lc.Email); err != nil {
			h.logger.Error("create personal team", "user_id", user.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		h.logger.Info("user created", "user_id", user.ID)
	}

	teams, err := h.teamStore.ListTeamsForUser(user.ID)
	if err != nil || len(teams) == 0 {
		h.logger.Error("verify teams", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "no team found")
		return
	}
	teamID := teams[0].ID

	sess, err := h.sessionStore.Create(user.ID, teamID)
	if err != nil {
		h.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
	})

	writeJSON(w, http.StatusOK, map[string]any{"user": user, "team_id": teamID})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if sess, err := h.sessionStore.GetByToken(cookie.Value); err == nil && sess != nil {
			if err := h.sessionStore.Delete(sess.ID); err != nil {
				h.logger.Error("delete session", "error", err)
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the signed-in user and their teams.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ac, ok := requireAuth(w, r)
	if !ok {
		return
	}
	user, err := h.userStore.GetByID(ac.UserID)
	if err != nil || user == nil {
		h.logger.Error("load user", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load user")
		return
	}
	teams, err := h.teamStore.ListTeamsForUser(ac.UserID)
	if err != nil {
		h.logger.Error("list teams", "user_id", ac.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load teams")
		return
	}
	if teams == nil {
		teams = []model.Team{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"team_id": ac.TeamID,
		"role":    ac.Role,
		"teams":   teams,
	})
}
