// Package sessionserver exposes the session-issuance endpoint that embedded
// checkout pages call for a client secret.
//
// Routes:
//
//	POST /create-checkout-session            -> 201 {"clientSecret": "..."}
//	GET  /session-status?session_id=<id>     -> 200 {"status": "...", "customer_email": "..."}
//
// The client secret is produced by an [Issuer] and passed through untouched.
package sessionserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Issuer is implemented by the payment provider integration that owns
// checkout sessions.
type Issuer interface {
	IssueSession(ctx context.Context) (*Session, error)
	SessionStatus(ctx context.Context, id string) (*Status, error)
}

// Session is a freshly created checkout session.
type Session struct {
	ID           string
	ClientSecret string
}

// Status summarizes a checkout session for the return page.
type Status struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status,omitempty"`
	CustomerEmail string `json:"customer_email"`
}

type sessionResponse struct {
	ClientSecret string `json:"clientSecret"`
}

// Handler wires the session routes to an [Issuer].
type Handler struct {
	issuer Issuer
	mux    *http.ServeMux
	cfg    config
}

// NewHandler builds a [Handler] backed by net/http's ServeMux.
func NewHandler(issuer Issuer, opts ...Option) *Handler {
	if issuer == nil {
		panic("sessionserver: issuer is required")
	}
	cfg := config{
		maxClockSkew: 5 * time.Minute,
		clock:        time.Now,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.requireSignedRequests && cfg.signatureVerifier == nil {
		panic("sessionserver: signature verifier required when signed requests are enforced")
	}
	h := &Handler{
		issuer: issuer,
		mux:    http.NewServeMux(),
		cfg:    cfg,
	}
	var middleware []Middleware
	if mw := newSignatureMiddleware(signatureMiddlewareConfig{
		Verifier:      cfg.signatureVerifier,
		RequireSigned: cfg.requireSignedRequests,
		MaxClockSkew:  cfg.maxClockSkew,
		Clock:         cfg.clock,
		Logger:        cfg.logger,
	}); mw != nil {
		middleware = append(middleware, mw)
	}
	if cfg.authenticator != nil {
		middleware = append(middleware, authenticationMiddleware(cfg.authenticator, cfg.logger))
	}
	middleware = append(middleware, cfg.middleware...)
	h.registerRoutes(middleware...)
	return h
}

// ServeHTTP satisfies http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestCtx := requestContextFromRequest(r)
	ctx := contextWithRequestContext(r.Context(), requestCtx)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *Handler) registerRoutes(middleware ...Middleware) {
	h.mux.HandleFunc("POST /create-checkout-session", applyMiddleware(h.handleCreate, middleware...))
	h.mux.HandleFunc("GET /session-status", applyMiddleware(h.handleStatus, middleware...))
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	session, err := h.issuer.IssueSession(r.Context())
	if err != nil {
		h.logFailure(r, "issue session failed", err)
		writeServiceError(w, err)
		return
	}
	if session == nil || session.ClientSecret == "" {
		h.cfg.logger.ErrorContext(r.Context(), "issuer returned no client secret")
		writeJSONError(w, NewProcessingError("checkout session has no client secret"))
		return
	}
	h.cfg.logger.InfoContext(r.Context(), "checkout session issued", "session_id", session.ID, "request_id", requestID(r.Context()))
	writeJSON(w, http.StatusCreated, sessionResponse{ClientSecret: session.ClientSecret})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if id == "" {
		writeJSONError(w, NewInvalidRequestError("session_id is required", WithOffendingParam("session_id")))
		return
	}
	status, err := h.issuer.SessionStatus(r.Context(), id)
	if err != nil {
		h.logFailure(r, "session status failed", err, "session_id", id)
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) logFailure(r *http.Request, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", requestID(r.Context()))
	h.cfg.logger.ErrorContext(r.Context(), msg, attrs...)
}

func requestID(ctx context.Context) string {
	if rc := RequestContextFromContext(ctx); rc != nil {
		return rc.RequestID
	}
	return ""
}
