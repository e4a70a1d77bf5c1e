// Package httpapi exposes the gateway over HTTP.
package httpapi

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	app "github.com/splito-labs/settlement_gateway/internal/app"
	"github.com/splito-labs/settlement_gateway/internal/app/metrics"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
	"github.com/splito-labs/settlement_gateway/internal/httputil"
	"github.com/splito-labs/settlement_gateway/internal/middleware"
	"github.com/splito-labs/settlement_gateway/pkg/logger"
)

// Server is the HTTP surface of an application.
type Server struct {
	app      *app.Application
	log      *logger.Logger
	audit    *auditLog
	limiter  *middleware.RateLimiter
	origins  []string
	upgrader websocket.Upgrader
	handler  http.Handler
	closers  []io.Closer
}

// NewServer builds the router for application.
func NewServer(application *app.Application, log *logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	cfg := application.Config.Server

	s := &Server{
		app:     application,
		log:     log,
		origins: cfg.Origins(),
		limiter: middleware.NewRateLimiter(cfg.RateLimitPerSec, cfg.RateLimitBurst, log.Named("ratelimit")),
	}

	var sink auditSink = logAuditSink{log: log.Named("audit")}
	if cfg.AuditLogPath != "" {
		fileSink, err := newFileAuditSink(cfg.AuditLogPath)
		if err != nil {
			return nil, err
		}
		sink = fileSink
		s.closers = append(s.closers, fileSink)
	}
	s.audit = newAuditLog(500, sink)

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	session := middleware.NewSessionAuth(application.Backend, application.Backend.SessionName(),
		application.Cache, cfg.SessionCacheTTL, log.Named("session"))

	router := mux.NewRouter()
	router.Use(metrics.InstrumentHandler)
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/v1").Subrouter()
	api.Use(session.Handler, s.limiter.Handler, s.audit.middleware)
	s.routes(api)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, apperr.New(apperr.CodeNotFound, "route not found"))
	})

	var h http.Handler = router
	h = middleware.NewCORSMiddleware(s.origins).Handler(h)
	h = middleware.NewTracingMiddleware(log.Named("http")).Handler(h)
	s.handler = h
	return s, nil
}

func (s *Server) routes(r *mux.Router) {
	r.HandleFunc("/me", s.me).Methods(http.MethodGet)
	r.HandleFunc("/balances", s.balances).Methods(http.MethodGet)
	r.HandleFunc("/balances/plan", s.balancePlan).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/balances", s.groupBalances).Methods(http.MethodGet)
	r.HandleFunc("/friends", s.friends).Methods(http.MethodGet)
	r.HandleFunc("/friends/invite", s.inviteFriend).Methods(http.MethodPost)
	r.HandleFunc("/friends/{id}/settlements", s.settleOne).Methods(http.MethodPost)

	r.HandleFunc("/chains", s.chains).Methods(http.MethodGet)
	r.HandleFunc("/tokens", s.tokens).Methods(http.MethodGet)
	r.HandleFunc("/quotes", s.convert).Methods(http.MethodPost)
	r.HandleFunc("/quotes/{tokenId}", s.quote).Methods(http.MethodGet)

	r.HandleFunc("/settlements", s.settleAll).Methods(http.MethodPost)
	r.HandleFunc("/settlements", s.listSettlements).Methods(http.MethodGet)
	r.HandleFunc("/settlements/{id}", s.getSettlement).Methods(http.MethodGet)
	r.HandleFunc("/settlements/{id}/signed", s.submitSigned).Methods(http.MethodPost)

	r.HandleFunc("/invoices", s.listInvoices).Methods(http.MethodGet)
	r.HandleFunc("/invoices", s.createInvoice).Methods(http.MethodPost)
	r.HandleFunc("/invoices/{id}/status", s.updateInvoiceStatus).Methods(http.MethodPatch)
	r.HandleFunc("/organizations/{id}/contracts", s.listContracts).Methods(http.MethodGet)
	r.HandleFunc("/organizations/{id}/contracts", s.createContract).Methods(http.MethodPost)
	r.HandleFunc("/groups/{id}/streams", s.listStreams).Methods(http.MethodGet)
	r.HandleFunc("/groups/{id}/streams", s.createStream).Methods(http.MethodPost)

	r.HandleFunc("/onboarding", s.listOnboarding).Methods(http.MethodGet)
	r.HandleFunc("/onboarding/{tutorial}", s.onboardingStatus).Methods(http.MethodGet)
	r.HandleFunc("/onboarding/{tutorial}", s.markOnboarding).Methods(http.MethodPut)
	r.HandleFunc("/onboarding/{tutorial}", s.resetOnboarding).Methods(http.MethodDelete)

	r.HandleFunc("/audit", s.auditTrail).Methods(http.MethodGet)
	r.HandleFunc("/events", s.events).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// StartCleanup prunes idle rate limiters until stop is closed.
func (s *Server) StartCleanup(stop <-chan struct{}) {
	s.limiter.StartCleanup(5*time.Minute, stop)
}

// Close releases the audit sink.
func (s *Server) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"services":    s.app.Services(),
		"subscribers": s.app.Events.Subscribers(),
		"pending":     s.app.Poller.Pending(),
	})
}

func (s *Server) auditTrail(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.audit.forUser(userID, intQuery(r, "limit", 50)))
}

// checkOrigin accepts same-host upgrades and configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range s.origins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if strings.HasPrefix(allowed, ".") && strings.HasSuffix(origin, allowed) {
			return true
		}
	}
	return false
}
