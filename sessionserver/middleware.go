package sessionserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sumup/embedcheckout/signature"
)

// Authenticator validates Authorization header API keys before the
// request reaches the issuer.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) error
}

// AuthenticatorFunc lifts bare functions into [Authenticator].
type AuthenticatorFunc func(ctx context.Context, apiKey string) error

// Authenticate validates the API key using the wrapped function.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, apiKey string) error {
	return f(ctx, apiKey)
}

func authenticationMiddleware(auth Authenticator, logger *slog.Logger) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if authHeader == "" {
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, MissingAuthorization, "Authorization header is required"))
				return
			}
			scheme, apiKey, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidAuthorization, "Authorization header must be in the format 'Bearer <api_key>'"))
				return
			}
			apiKey = strings.TrimSpace(apiKey)
			if apiKey == "" {
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidAuthorization, "API key is required"))
				return
			}
			if err := auth.Authenticate(r.Context(), apiKey); err != nil {
				logger.WarnContext(r.Context(), "rejected API key", "path", r.URL.Path, "error", err)
				var httpErr *Error
				if errors.As(err, &httpErr) {
					writeJSONError(w, httpErr)
					return
				}
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidAuthorization, "invalid API key"))
				return
			}
			next(w, r)
		}
	}
}

type signatureMiddlewareConfig struct {
	Verifier      signature.Verifier
	RequireSigned bool
	MaxClockSkew  time.Duration
	Clock         func() time.Time
	Logger        *slog.Logger
}

func newSignatureMiddleware(cfg signatureMiddlewareConfig) Middleware {
	if cfg.Verifier == nil {
		return nil
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			sig := strings.TrimSpace(r.Header.Get("Signature"))
			timestampHeader := strings.TrimSpace(r.Header.Get("Timestamp"))
			if sig == "" && timestampHeader == "" {
				if cfg.RequireSigned {
					writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, SignatureRequired, "Signature and Timestamp headers are required"))
					return
				}
				next(w, r)
				return
			}
			if sig == "" || timestampHeader == "" {
				writeJSONError(w, NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature, "Signature and Timestamp headers must both be provided"))
				return
			}
			ts, err := signature.ParseTimestamp(timestampHeader)
			if err != nil {
				writeJSONError(w, NewHTTPError(http.StatusBadRequest, InvalidRequest, InvalidSignature, "Timestamp must be RFC3339"))
				return
			}
			ts = ts.UTC()
			if cfg.MaxClockSkew > 0 {
				if skew := signature.AbsDuration(cfg.Clock().Sub(ts)); skew > cfg.MaxClockSkew {
					writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, StaleTimestamp, fmt.Sprintf("timestamp skew exceeds %s", cfg.MaxClockSkew)))
					return
				}
			}
			raw, err := signature.ReadAndBufferBody(r)
			if err != nil {
				writeJSONError(w, NewInvalidRequestError("unable to read request body"))
				return
			}
			canonicalBody, err := signature.CanonicalizeJSONBody(raw)
			if err != nil {
				writeJSONError(w, NewInvalidRequestError("request body must be valid JSON"))
				return
			}
			material := signature.Material{
				Signature:     sig,
				Timestamp:     ts,
				CanonicalBody: canonicalBody,
				Method:        r.Method,
				Path:          r.URL.Path,
				RawQuery:      r.URL.RawQuery,
				Headers:       r.Header.Clone(),
			}
			if err := cfg.Verifier.Verify(r.Context(), material); err != nil {
				cfg.Logger.WarnContext(r.Context(), "signature verification failed", "path", r.URL.Path, "error", err)
				writeJSONError(w, NewHTTPError(http.StatusUnauthorized, InvalidRequest, InvalidSignature, "signature verification failed"))
				return
			}
			next(w, r)
		}
	}
}
