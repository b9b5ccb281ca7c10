// Package server wires stores, the document pipeline and handlers into the
// HTTP router.
package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/cohabit/internal/archive"
	"github.com/dukerupert/cohabit/internal/config"
	"github.com/dukerupert/cohabit/internal/document"
	"github.com/dukerupert/cohabit/internal/email"
	"github.com/dukerupert/cohabit/internal/handler"
	"github.com/dukerupert/cohabit/internal/middleware"
	"github.com/dukerupert/cohabit/internal/payment"
	"github.com/dukerupert/cohabit/internal/store"
	ws "github.com/dukerupert/cohabit/internal/websocket"
)

type Server struct {
	db             *sql.DB
	authH          *handler.AuthHandler
	contractH      *handler.ContractHandler
	documentH      *handler.DocumentHandler
	deliveryH      *handler.DeliveryHandler
	checkoutH      *handler.CheckoutHandler
	adminH         *handler.AdminHandler
	userStore      *store.UserStore
	teamStore      *store.TeamStore
	sessionStore   *store.SessionStore
	loginCodeStore *store.LoginCodeStore
	rateLimiter    *middleware.RateLimiter
	memProgress    *document.MemoryProgress
	logger         *slog.Logger
}

// New builds the server. rdb may be nil, in which case progress is kept in
// process memory.
func New(cfg config.Config, db *sql.DB, rdb *redis.Client, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	teamStore := store.NewTeamStore(db)
	sessionStore := store.NewSessionStore(db)
	loginCodeStore := store.NewLoginCodeStore(db)
	contractStore := store.NewContractStore(db)
	templateStore := store.NewTemplateStore(db)
	lawyerStore := store.NewLawyerStore(db)
	couponStore := store.NewCouponStore(db)
	affiliateStore := store.NewAffiliateStore(db)
	deliveryStore := store.NewDeliveryStore(db)

	var progress document.ProgressStore
	var memProgress *document.MemoryProgress
	if rdb != nil {
		progress = document.NewRedisProgress(rdb, cfg.Document.ProgressTTL)
	} else {
		memProgress = document.NewMemoryProgress(cfg.Document.ProgressTTL)
		progress = memProgress
	}
	progress = document.NewBroadcaster(progress, hub)

	generator := document.NewGenerator(
		contractStore, templateStore, lawyerStore,
		NewConverter(cfg.Gotenberg, logger.With("component", "converter")),
		progress,
		logger.With("component", "document"),
		GeneratorOptions(cfg.Document)...,
	)

	emailClient := email.NewClient(cfg.Email.PostmarkToken, cfg.Email.From, cfg.BaseURL)
	payments := payment.NewClient(payment.Config{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PriceCents:    cfg.Stripe.PriceCents,
		Currency:      cfg.Stripe.Currency,
		ProductName:   cfg.Stripe.ProductName,
		SuccessURL:    cfg.BaseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     cfg.BaseURL + "/checkout/cancelled",
	})
	archiver := NewArchiver(cfg.Archive, logger.With("component", "archive"))

	return &Server{
		db:             db,
		authH:          handler.NewAuthHandler(userStore, teamStore, sessionStore, loginCodeStore, emailClient, logger.With("component", "auth")),
		contractH:      handler.NewContractHandler(contractStore, lawyerStore, logger.With("component", "contract")),
		documentH:      handler.NewDocumentHandler(generator, contractStore, userStore, progress, hub, originPatterns(cfg.BaseURL), logger.With("component", "document_handler")),
		deliveryH:      handler.NewDeliveryHandler(generator, contractStore, userStore, lawyerStore, deliveryStore, archiver, emailClient, logger.With("component", "delivery")),
		checkoutH:      handler.NewCheckoutHandler(contractStore, userStore, couponStore, affiliateStore, payments, emailClient, cfg.BaseURL, logger.With("component", "checkout")),
		adminH:         handler.NewAdminHandler(templateStore, lawyerStore, couponStore, affiliateStore, contractStore, logger.With("component", "admin")),
		userStore:      userStore,
		teamStore:      teamStore,
		sessionStore:   sessionStore,
		loginCodeStore: loginCodeStore,
		rateLimiter:    middleware.NewRateLimiter(),
		memProgress:    memProgress,
		logger:         logger,
	}
}

// NewConverter returns Gotenberg, followed by the local basic renderer when
// the fallback is enabled.
func NewConverter(cfg config.GotenbergConfig, logger *slog.Logger) document.Converter {
	gotenberg := document.NewGotenbergConverter(cfg.URL, cfg.Timeout)
	if !cfg.Fallback {
		return gotenberg
	}
	return document.NewChain(logger, gotenberg, document.BasicConverter{})
}

// GeneratorOptions maps document settings onto generator options. Empty
// watermark settings keep the defaults.
func GeneratorOptions(cfg config.DocumentConfig) []document.GeneratorOption {
	mark := document.DefaultWatermark()
	if cfg.WatermarkText != "" {
		mark.Text = cfg.WatermarkText
	}
	if cfg.WatermarkHeader != "" {
		mark.Header = cfg.WatermarkHeader
	}
	if cfg.WatermarkFooter != "" {
		mark.Footer = cfg.WatermarkFooter
	}
	return []document.GeneratorOption{
		document.WithPreviewPages(cfg.PreviewPages),
		document.WithWatermark(mark),
	}
}

// NewArchiver maps archive settings onto the S3 archiver.
func NewArchiver(cfg config.ArchiveConfig, logger *slog.Logger) *archive.Archiver {
	return archive.New(archive.Config{
		Endpoint:   cfg.Endpoint,
		Bucket:     cfg.Bucket,
		Region:     cfg.Region,
		AccessKey:  cfg.AccessKey,
		SecretKey:  cfg.SecretKey,
		Prefix:     cfg.Prefix,
		Passphrase: cfg.Passphrase,
	}, logger)
}

// originPatterns allows websocket upgrades from the public site's host.
func originPatterns(baseURL string) []string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return []string{u.Host}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// LoginCodeStore returns the sign-in code store.
func (s *Server) LoginCodeStore() *store.LoginCodeStore {
	return s.loginCodeStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// MemoryProgress returns the in-process progress store, or nil when progress
// lives in Redis.
func (s *Server) MemoryProgress() *document.MemoryProgress {
	return s.memProgress
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/auth/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("POST /api/auth/verify", s.rateLimitedHandler(s.authH.Verify))
	outerMux.HandleFunc("POST /api/auth/logout", s.authH.Logout)
	outerMux.HandleFunc("POST /webhooks/stripe", s.checkoutH.Webhook)
	outerMux.HandleFunc("GET /r/{code}", s.checkoutH.Referral)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	adminMux := http.NewServeMux()
	s.registerAdminRoutes(adminMux)
	protectedMux.Handle("/api/admin/", middleware.RequireAdmin(adminMux))

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.teamStore, s.userStore)
	outerMux.Handle("/api/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "database unavailable"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.KeyByIP, 10, time.Minute)
	return rl(h).ServeHTTP
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/me", s.authH.Me)

	mux.HandleFunc("GET /api/contracts", s.contractH.List)
	mux.HandleFunc("POST /api/contracts", s.contractH.Create)
	mux.HandleFunc("GET /api/contracts/current", s.contractH.Current)
	mux.HandleFunc("GET /api/contracts/{id}", s.contractH.Get)
	mux.HandleFunc("PUT /api/contracts/{id}", s.contractH.Update)
	mux.HandleFunc("POST /api/contracts/{id}/current", s.contractH.SetCurrent)
	mux.HandleFunc("POST /api/contracts/{id}/accept-terms", s.contractH.AcceptTerms)
	mux.HandleFunc("PUT /api/contracts/{id}/lawyers", s.contractH.AssignLawyers)
	mux.HandleFunc("GET /api/lawyers", s.contractH.ListLawyers)

	// Documents
	mux.HandleFunc("GET /api/contracts/{id}/pdf", s.documentH.Download)
	mux.HandleFunc("GET /api/contracts/{id}/pdf/preview", s.documentH.Preview)
	mux.HandleFunc("GET /api/contracts/{id}/pdf/progress", s.documentH.Progress)
	mux.HandleFunc("GET /api/contracts/{id}/pdf/progress/ws", s.documentH.ProgressStream)

	mux.HandleFunc("POST /api/contracts/{id}/send", s.deliveryH.Send)
	mux.HandleFunc("GET /api/contracts/{id}/deliveries", s.deliveryH.List)

	mux.HandleFunc("POST /api/contracts/{id}/checkout", s.checkoutH.Checkout)
}

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/admin/templates", s.adminH.ListTemplates)
	mux.HandleFunc("POST /api/admin/templates", s.adminH.UploadTemplate)
	mux.HandleFunc("POST /api/admin/templates/{id}/activate", s.adminH.ActivateTemplate)

	mux.HandleFunc("GET /api/admin/lawyers", s.adminH.ListLawyers)
	mux.HandleFunc("POST /api/admin/lawyers", s.adminH.CreateLawyer)
	mux.HandleFunc("PUT /api/admin/lawyers/{id}", s.adminH.UpdateLawyer)
	mux.HandleFunc("DELETE /api/admin/lawyers/{id}", s.adminH.DeactivateLawyer)

	mux.HandleFunc("GET /api/admin/coupons", s.adminH.ListCoupons)
	mux.HandleFunc("POST /api/admin/coupons", s.adminH.CreateCoupon)
	mux.HandleFunc("DELETE /api/admin/coupons/{id}", s.adminH.DeactivateCoupon)

	mux.HandleFunc("GET /api/admin/affiliates", s.adminH.ListAffiliates)
	mux.HandleFunc("POST /api/admin/affiliates", s.adminH.CreateAffiliate)
	mux.HandleFunc("DELETE /api/admin/affiliates/{id}", s.adminH.DeactivateAffiliate)

	mux.HandleFunc("GET /api/admin/report", s.adminH.Report)
}
