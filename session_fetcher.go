package embedcheckout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sumup/embedcheckout/signature"
)

// DefaultCredentialField is the response field read by [SessionFetcher]
// unless [WithCredentialField] says otherwise.
const DefaultCredentialField = "clientSecret"

const maxErrorBody = 4096

// SessionFetcher is a [CredentialProvider] that asks the session-issuance
// backend for a fresh credential on every call. Nothing is cached.
type SessionFetcher struct {
	cfg fetcherConfig
}

// NewSessionFetcher builds a [SessionFetcher] that POSTs to endpoint.
func NewSessionFetcher(endpoint string, opts ...FetcherOption) (*SessionFetcher, error) {
	cfg := fetcherConfig{
		Endpoint:        endpoint,
		CredentialField: DefaultCredentialField,
		Client:          http.DefaultClient,
		Clock:           time.Now,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("embedcheckout: session fetcher: %w", err)
	}
	return &SessionFetcher{cfg: cfg}, nil
}

// Endpoint returns the session-issuance URL.
func (f *SessionFetcher) Endpoint() string {
	return f.cfg.Endpoint
}

// FetchClientSecret performs one bodiless POST and returns the credential.
// Failures are reported as [*SessionFetchError] or
// [*MalformedCredentialError].
func (f *SessionFetcher) FetchClientSecret(ctx context.Context) (string, error) {
	req, err := f.newRequest(ctx)
	if err != nil {
		return "", err
	}
	resp, err := f.cfg.Client.Do(req)
	if err != nil {
		return "", &SessionFetchError{Endpoint: f.cfg.Endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &SessionFetchError{
			Endpoint:   f.cfg.Endpoint,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), f.cfg.Clock()),
		}
	}
	return decodeCredential(resp.Body, f.cfg.CredentialField)
}

func (f *SessionFetcher) newRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, http.NoBody)
	if err != nil {
		return nil, &SessionFetchError{Endpoint: f.cfg.Endpoint, Err: err}
	}
	for key, values := range f.cfg.Headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Request-Id", uuid.NewString())
	if f.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIKey)
	}
	if f.cfg.Signer != nil {
		ts := f.cfg.Clock().UTC()
		canonical, err := signature.CanonicalizeJSONBody(nil)
		if err != nil {
			return nil, &SessionFetchError{Endpoint: f.cfg.Endpoint, Err: err}
		}
		sig, err := f.cfg.Signer.Sign(ctx, ts, canonical)
		if err != nil {
			return nil, &SessionFetchError{Endpoint: f.cfg.Endpoint, Err: fmt.Errorf("sign request: %w", err)}
		}
		req.Header.Set("Signature", sig)
		req.Header.Set("Timestamp", signature.FormatTimestamp(ts))
	}
	return req, nil
}

// decodeCredential pulls field out of a JSON object body. Unknown fields are
// ignored; the credential itself is never inspected beyond being a non-empty
// string.
func decodeCredential(body io.Reader, field string) (string, error) {
	dec := json.NewDecoder(body)
	var payload map[string]json.RawMessage
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("response body required")
		}
		return "", &MalformedCredentialError{Field: field, Err: err}
	}
	if dec.More() {
		return "", &MalformedCredentialError{Field: field, Err: errors.New("unexpected data after JSON body")}
	}
	raw, ok := payload[field]
	if !ok {
		return "", &MalformedCredentialError{Field: field}
	}
	var secret string
	if err := json.Unmarshal(raw, &secret); err != nil {
		return "", &MalformedCredentialError{Field: field, Err: errors.New("must be a string")}
	}
	if secret == "" {
		return "", &MalformedCredentialError{Field: field, Err: errors.New("must not be empty")}
	}
	return secret, nil
}
