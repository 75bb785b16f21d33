package sessionserver

import (
	"context"
	"net/http"
	"strings"
)

// RequestContext carries the headers of a session request to the [Issuer].
type RequestContext struct {
	// API key used to make requests
	//
	// Example: Bearer api_key_123
	Authorization string
	// The preferred locale of the checkout page
	//
	// Example: en-US
	AcceptLanguage string
	// Browser or client making this request
	UserAgent string
	// Unique key for each request for tracing purposes
	//
	// Example: 0b0c4d8e-5f0a-4b9a-8f60-1f2f1c1d2e3f
	RequestID string
	// Base64url encoded signature of the request body
	Signature string
	// Formatted as an RFC 3339 string.
	//
	// Example: 2025-09-25T10:30:00Z
	Timestamp string
}

func requestContextFromRequest(r *http.Request) *RequestContext {
	return &RequestContext{
		Authorization:  strings.TrimSpace(r.Header.Get("Authorization")),
		AcceptLanguage: strings.TrimSpace(r.Header.Get("Accept-Language")),
		UserAgent:      strings.TrimSpace(r.Header.Get("User-Agent")),
		RequestID:      strings.TrimSpace(r.Header.Get("Request-Id")),
		Signature:      strings.TrimSpace(r.Header.Get("Signature")),
		Timestamp:      strings.TrimSpace(r.Header.Get("Timestamp")),
	}
}

type requestContextKey struct{}

func contextWithRequestContext(ctx context.Context, requestCtx *RequestContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if requestCtx == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, requestCtx)
}

// RequestContextFromContext extracts the HTTP request metadata previously stored in the context.
func RequestContextFromContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return nil
	}
	if requestCtx, ok := ctx.Value(requestContextKey{}).(*RequestContext); ok {
		return requestCtx
	}
	return nil
}
