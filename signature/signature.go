// Package signature signs and verifies session requests exchanged between the
// checkout page and the session-issuance backend.
//
// A signature is the base64url-encoded (unpadded) HMAC-SHA256 of
// `RFC3339Nano(timestamp) + "." + canonicalJSON(body)`. An empty body
// canonicalizes to `null`, so bodiless POSTs can still be signed.
package signature

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
)

// Material captures the inputs needed to validate a signed request.
type Material struct {
	Signature     string
	Timestamp     time.Time
	CanonicalBody []byte
	Method        string
	Path          string
	RawQuery      string
	Headers       http.Header
}

// Verifier validates the authenticity of incoming requests.
type Verifier interface {
	Verify(ctx context.Context, material Material) error
}

// VerifierFunc lifts bare functions into [Verifier].
type VerifierFunc func(ctx context.Context, material Material) error

// Verify delegates to the wrapped function.
func (f VerifierFunc) Verify(ctx context.Context, material Material) error {
	return f(ctx, material)
}

// Signer produces the Signature header value for an outgoing request.
type Signer interface {
	Sign(ctx context.Context, ts time.Time, canonicalBody []byte) (string, error)
}

// SignerFunc lifts bare functions into [Signer].
type SignerFunc func(ctx context.Context, ts time.Time, canonicalBody []byte) (string, error)

// Sign delegates to the wrapped function.
func (f SignerFunc) Sign(ctx context.Context, ts time.Time, canonicalBody []byte) (string, error) {
	return f(ctx, ts, canonicalBody)
}

// HMACSigner signs requests with a shared HMAC-SHA256 key.
type HMACSigner struct {
	Key []byte
}

// Sign implements [Signer].
func (s HMACSigner) Sign(_ context.Context, ts time.Time, canonicalBody []byte) (string, error) {
	if len(s.Key) == 0 {
		return "", errors.New("signature: HMACSigner requires a non-empty key")
	}
	sum, err := computeMAC(s.Key, BuildSigningPayload(ts, canonicalBody))
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}

// HMACVerifier validates signatures produced by [HMACSigner] with the same key.
type HMACVerifier struct {
	Key []byte
}

// Verify implements [Verifier] by recomputing the expected HMAC signature.
func (v HMACVerifier) Verify(_ context.Context, material Material) error {
	if len(v.Key) == 0 {
		return errors.New("signature: HMACVerifier requires a non-empty key")
	}
	expected, err := computeMAC(v.Key, BuildSigningPayload(material.Timestamp, material.CanonicalBody))
	if err != nil {
		return err
	}
	decoded, err := base64.RawURLEncoding.DecodeString(material.Signature)
	if err != nil {
		return fmt.Errorf("signature: decode signature: %w", err)
	}
	if !hmac.Equal(decoded, expected) {
		return errors.New("signature: invalid signature")
	}
	return nil
}

func computeMAC(key, payload []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, key)
	if _, err := mac.Write(payload); err != nil {
		return nil, fmt.Errorf("signature: compute signature: %w", err)
	}
	return mac.Sum(nil), nil
}

// ReadAndBufferBody reads the request body while keeping it accessible for later handlers.
func ReadAndBufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

// CanonicalizeJSONBody normalizes arbitrary JSON into canonical form for signing.
func CanonicalizeJSONBody(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("signature: multiple JSON documents in body")
	}
	return canonicaljson.Marshal(payload)
}

// ParseTimestamp accepts Timestamp header values in RFC3339 or RFC3339Nano format.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("signature: empty timestamp")
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

// FormatTimestamp renders ts the way [ParseTimestamp] and the signing payload expect.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// AbsDuration returns the absolute value of the supplied duration.
func AbsDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// BuildSigningPayload constructs the canonical string that is HMAC-signed.
func BuildSigningPayload(ts time.Time, canonicalBody []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(FormatTimestamp(ts))
	buf.WriteByte('.')
	buf.Write(canonicalBody)
	return buf.Bytes()
}
