package signature

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHMACSignerRoundTrip(t *testing.T) {
	t.Parallel()

	key := []byte("secret")
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	canonical, err := CanonicalizeJSONBody(nil)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(canonical) != "null" {
		t.Fatalf("expected empty body to canonicalize to null, got %s", canonical)
	}

	sig, err := HMACSigner{Key: key}.Sign(context.Background(), ts, canonical)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if strings.ContainsAny(sig, "+/=") {
		t.Fatalf("expected unpadded base64url signature, got %q", sig)
	}

	material := Material{Signature: sig, Timestamp: ts, CanonicalBody: canonical}
	if err := (HMACVerifier{Key: key}).Verify(context.Background(), material); err != nil {
		t.Fatalf("verify: %v", err)
	}

	if err := (HMACVerifier{Key: []byte("other")}).Verify(context.Background(), material); err == nil {
		t.Fatalf("expected signature from a different key to fail")
	}
	material.CanonicalBody = []byte(`{}`)
	if err := (HMACVerifier{Key: key}).Verify(context.Background(), material); err == nil {
		t.Fatalf("expected signature over a different body to fail")
	}
}

func TestHMACRequiresKey(t *testing.T) {
	t.Parallel()

	if _, err := (HMACSigner{}).Sign(context.Background(), time.Now(), []byte("null")); err == nil {
		t.Fatalf("expected signer error for empty key")
	}
	if err := (HMACVerifier{}).Verify(context.Background(), Material{}); err == nil {
		t.Fatalf("expected verifier error for empty key")
	}
}

func TestCanonicalizeJSONBody(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		in      string
		want    string
		wantErr bool
	}{
		"sorts keys":       {in: `{"b":1,"a":"x"}`, want: `{"a":"x","b":1}`},
		"whitespace only":  {in: "  \n", want: "null"},
		"invalid json":     {in: "{", wantErr: true},
		"multiple objects": {in: `{}{}`, wantErr: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := CanonicalizeJSONBody([]byte(tt.in))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("expected %s got %s", tt.want, got)
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 9, 25, 10, 30, 0, 123, time.UTC)
	got, err := ParseTimestamp(FormatTimestamp(ts))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.Equal(ts) {
		t.Fatalf("expected %s got %s", ts, got)
	}
	if _, err := ParseTimestamp(""); err == nil {
		t.Fatalf("expected error for empty timestamp")
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for malformed timestamp")
	}
}

func TestReadAndBufferBody(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/create-checkout-session", strings.NewReader(`{"a":1}`))
	raw, err := ReadAndBufferBody(req)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	again, err := ReadAndBufferBody(req)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if string(raw) != `{"a":1}` || string(again) != string(raw) {
		t.Fatalf("body not preserved: %q / %q", raw, again)
	}
}

func TestAbsDuration(t *testing.T) {
	t.Parallel()

	if got := AbsDuration(-time.Minute); got != time.Minute {
		t.Fatalf("expected 1m got %s", got)
	}
}
