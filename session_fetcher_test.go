package embedcheckout

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sumup/embedcheckout/signature"
)

func TestSessionFetcherSendsRequest(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"clientSecret":"cs_test_abc","id":"cs_1"}`))
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewSessionFetcher(srv.URL+"/create-checkout-session",
		WithHTTPClient(srv.Client()),
		WithAPIKey("api_key_123"),
		WithHeader("X-Store", "berlin"),
		WithRequestSigner(signature.HMACSigner{Key: key}),
		withFetcherClock(func() time.Time { return ts }),
	)
	if err != nil {
		t.Fatalf("NewSessionFetcher() error = %v", err)
	}

	secret, err := fetcher.FetchClientSecret(context.Background())
	if err != nil {
		t.Fatalf("FetchClientSecret() error = %v", err)
	}
	if secret != "cs_test_abc" {
		t.Fatalf("unexpected secret %q", secret)
	}

	if got.Method != http.MethodPost || got.URL.Path != "/create-checkout-session" {
		t.Fatalf("unexpected request %s %s", got.Method, got.URL.Path)
	}
	if len(body) != 0 {
		t.Fatalf("expected empty body got %q", body)
	}
	if got.Header.Get("Authorization") != "Bearer api_key_123" {
		t.Fatalf("unexpected authorization %q", got.Header.Get("Authorization"))
	}
	if got.Header.Get("X-Store") != "berlin" {
		t.Fatalf("missing static header")
	}
	if got.Header.Get("Request-Id") == "" {
		t.Fatalf("missing Request-Id")
	}

	sigTS, err := signature.ParseTimestamp(got.Header.Get("Timestamp"))
	if err != nil {
		t.Fatalf("parse timestamp: %v", err)
	}
	material := signature.Material{
		Signature:     got.Header.Get("Signature"),
		Timestamp:     sigTS,
		CanonicalBody: []byte("null"),
	}
	if err := (signature.HMACVerifier{Key: key}).Verify(context.Background(), material); err != nil {
		t.Fatalf("signature does not verify: %v", err)
	}
}

func TestSessionFetcherErrors(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		status int
		header map[string]string
		body   string
		field  string
		check  func(t *testing.T, err error)
	}{
		"server error": {
			status: http.StatusInternalServerError,
			body:   "upstream unavailable",
			check: func(t *testing.T, err error) {
				var fetchErr *SessionFetchError
				if !errors.As(err, &fetchErr) {
					t.Fatalf("expected SessionFetchError got %T", err)
				}
				if fetchErr.StatusCode != http.StatusInternalServerError || !fetchErr.Temporary() {
					t.Fatalf("unexpected error %+v", fetchErr)
				}
				if fetchErr.Body != "upstream unavailable" {
					t.Fatalf("unexpected body %q", fetchErr.Body)
				}
			},
		},
		"rate limited": {
			status: http.StatusTooManyRequests,
			header: map[string]string{"Retry-After": "3"},
			check: func(t *testing.T, err error) {
				var fetchErr *SessionFetchError
				if !errors.As(err, &fetchErr) {
					t.Fatalf("expected SessionFetchError got %T", err)
				}
				if fetchErr.RetryAfter() != 3*time.Second {
					t.Fatalf("unexpected retry-after %s", fetchErr.RetryAfter())
				}
			},
		},
		"forbidden": {
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var fetchErr *SessionFetchError
				if !errors.As(err, &fetchErr) || fetchErr.Temporary() {
					t.Fatalf("expected permanent SessionFetchError got %v", err)
				}
			},
		},
		"missing field": {
			status: http.StatusOK,
			body:   `{}`,
			check:  wantMalformed("clientSecret"),
		},
		"null field": {
			status: http.StatusOK,
			body:   `{"clientSecret":null}`,
			check:  wantMalformed("clientSecret"),
		},
		"non-string field": {
			status: http.StatusOK,
			body:   `{"clientSecret":42}`,
			check:  wantMalformed("clientSecret"),
		},
		"not an object": {
			status: http.StatusOK,
			body:   `["cs_test_abc"]`,
			check:  wantMalformed("clientSecret"),
		},
		"empty body": {
			status: http.StatusOK,
			check:  wantMalformed("clientSecret"),
		},
		"trailing data": {
			status: http.StatusOK,
			body:   `{"clientSecret":"a"}{"clientSecret":"b"}`,
			check:  wantMalformed("clientSecret"),
		},
		"custom field": {
			status: http.StatusOK,
			body:   `{"clientSecret":"cs_test_abc"}`,
			field:  "session_secret",
			check:  wantMalformed("session_secret"),
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			opts := []FetcherOption{WithHTTPClient(srv.Client()), withFetcherClock(func() time.Time { return now })}
			if tt.field != "" {
				opts = append(opts, WithCredentialField(tt.field))
			}
			fetcher, err := NewSessionFetcher(srv.URL, opts...)
			if err != nil {
				t.Fatalf("NewSessionFetcher() error = %v", err)
			}
			secret, err := fetcher.FetchClientSecret(context.Background())
			if err == nil {
				t.Fatalf("expected error, got secret %q", secret)
			}
			tt.check(t, err)
		})
	}
}

func TestSessionFetcherCustomField(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session_secret":"cs_test_xyz","session_id":"cs_1","key":"pk_test"}`))
	}))
	t.Cleanup(srv.Close)

	fetcher, err := NewSessionFetcher(srv.URL, WithHTTPClient(srv.Client()), WithCredentialField("session_secret"))
	if err != nil {
		t.Fatalf("NewSessionFetcher() error = %v", err)
	}
	secret, err := fetcher.FetchClientSecret(context.Background())
	if err != nil || secret != "cs_test_xyz" {
		t.Fatalf("unexpected result %q, %v", secret, err)
	}
}

func TestSessionFetcherTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	fetcher, err := NewSessionFetcher(endpoint)
	if err != nil {
		t.Fatalf("NewSessionFetcher() error = %v", err)
	}
	_, err = fetcher.FetchClientSecret(context.Background())
	var fetchErr *SessionFetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected SessionFetchError got %v", err)
	}
	if fetchErr.StatusCode != 0 || fetchErr.Err == nil || !fetchErr.Temporary() {
		t.Fatalf("unexpected error %+v", fetchErr)
	}
}

func TestSessionFetcherHonoursContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	fetcher, err := NewSessionFetcher(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewSessionFetcher() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = fetcher.FetchClientSecret(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestNewSessionFetcherValidatesConfig(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		endpoint string
		opts     []FetcherOption
		wantMsg  string
	}{
		"empty endpoint":    {endpoint: "", wantMsg: "endpoint is required"},
		"relative endpoint": {endpoint: "/create-checkout-session", wantMsg: "endpoint must be an absolute http(s) URL"},
		"empty field":       {endpoint: "https://shop.example/session", opts: []FetcherOption{WithCredentialField("")}, wantMsg: "credential_field is required"},
		"nil client":        {endpoint: "https://shop.example/session", opts: []FetcherOption{WithHTTPClient(nil)}, wantMsg: "http_client is required"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := NewSessionFetcher(tt.endpoint, tt.opts...)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected %q in %q", tt.wantMsg, err.Error())
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := map[string]struct {
		in   string
		want time.Duration
	}{
		"empty":    {in: "", want: 0},
		"seconds":  {in: "120", want: 2 * time.Minute},
		"negative": {in: "-1", want: 0},
		"date":     {in: now.Add(30 * time.Second).Format(http.TimeFormat), want: 30 * time.Second},
		"past":     {in: now.Add(-time.Hour).Format(http.TimeFormat), want: 0},
		"garbage":  {in: "soon", want: 0},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := parseRetryAfter(tt.in, now); got != tt.want {
				t.Fatalf("expected %s got %s", tt.want, got)
			}
		})
	}
}

func wantMalformed(field string) func(t *testing.T, err error) {
	return func(t *testing.T, err error) {
		t.Helper()

		var malformed *MalformedCredentialError
		if !errors.As(err, &malformed) {
			t.Fatalf("expected MalformedCredentialError got %T: %v", err, err)
		}
		if malformed.Field != field {
			t.Fatalf("expected field %q got %q", field, malformed.Field)
		}
	}
}
