package embedcheckout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/sumup/embedcheckout/signature"
)

type config struct {
	logger        *slog.Logger
	surface       Surface
	widgetOptions json.RawMessage
	optionsErr    error
}

// Option customizes the [Adapter].
type Option func(*config)

// WithLogger sets the structured logger used for bootstrap events. Logging
// is discarded by default.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithSurface lets the adapter check that the mount target exists before
// mounting.
func WithSurface(surface Surface) Option {
	return func(cfg *config) {
		cfg.surface = surface
	}
}

// WithWidgetOptions merges v, which must marshal to a JSON object, into
// [WidgetConfig.Options]. Later calls override earlier keys. A value that
// cannot be merged makes Initialize fail with a [WidgetInitError].
func WithWidgetOptions(v any) Option {
	return func(cfg *config) {
		if cfg.optionsErr != nil {
			return
		}
		patch, err := json.Marshal(v)
		if err != nil {
			cfg.optionsErr = fmt.Errorf("marshal widget options: %w", err)
			return
		}
		if !bytes.HasPrefix(bytes.TrimSpace(patch), []byte("{")) {
			cfg.optionsErr = errors.New("widget options must be a JSON object")
			return
		}
		base := cfg.widgetOptions
		if base == nil {
			base = json.RawMessage(`{}`)
		}
		merged, err := runtime.JSONMerge(base, patch)
		if err != nil {
			cfg.optionsErr = fmt.Errorf("merge widget options: %w", err)
			return
		}
		cfg.widgetOptions = merged
	}
}

type fetcherConfig struct {
	Endpoint        string           `json:"endpoint" validate:"required,http_url"`
	CredentialField string           `json:"credential_field" validate:"required"`
	APIKey          string           `json:"-"`
	Headers         http.Header      `json:"-"`
	Client          *http.Client     `json:"http_client" validate:"required"`
	Signer          signature.Signer `json:"-"`
	Clock           func() time.Time `json:"clock" validate:"required"`
}

// FetcherOption customizes the [SessionFetcher].
type FetcherOption func(*fetcherConfig)

// WithHTTPClient overrides the client used to reach the session endpoint.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(cfg *fetcherConfig) {
		cfg.Client = client
	}
}

// WithAPIKey sends `Authorization: Bearer <key>` with every fetch.
func WithAPIKey(key string) FetcherOption {
	return func(cfg *fetcherConfig) {
		cfg.APIKey = key
	}
}

// WithRequestSigner signs every fetch with Signature and Timestamp headers.
func WithRequestSigner(signer signature.Signer) FetcherOption {
	return func(cfg *fetcherConfig) {
		cfg.Signer = signer
	}
}

// WithCredentialField changes the response field that holds the session
// credential. Defaults to DefaultCredentialField.
func WithCredentialField(field string) FetcherOption {
	return func(cfg *fetcherConfig) {
		cfg.CredentialField = field
	}
}

// WithHeader adds a static header to every fetch.
func WithHeader(key, value string) FetcherOption {
	return func(cfg *fetcherConfig) {
		if cfg.Headers == nil {
			cfg.Headers = make(http.Header)
		}
		cfg.Headers.Add(key, value)
	}
}

// withFetcherClock provides deterministic time in tests.
func withFetcherClock(fn func() time.Time) FetcherOption {
	return func(cfg *fetcherConfig) {
		cfg.Clock = fn
	}
}
