// Package embedcheckouttest provides in-memory widgets and surfaces for
// testing code built on embedcheckout.
package embedcheckouttest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sumup/embedcheckout"
)

// Factory is an in-memory [embedcheckout.WidgetFactory]. On every
// InitEmbeddedCheckout it invokes the credential provider Invocations times
// and fails with the first provider error, the way hosted checkout SDKs do
// before their first render.
type Factory struct {
	// Invocations is the number of provider calls per widget. Zero means the
	// widget never asks for a credential.
	Invocations int
	// Err, when set, is returned before the provider is invoked.
	Err error

	mu      sync.Mutex
	configs []embedcheckout.WidgetConfig
	secrets []string
	handles []*Handle
}

// InitEmbeddedCheckout implements [embedcheckout.WidgetFactory].
func (f *Factory) InitEmbeddedCheckout(ctx context.Context, cfg embedcheckout.WidgetConfig) (embedcheckout.WidgetHandle, error) {
	f.mu.Lock()
	f.configs = append(f.configs, cfg)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if cfg.FetchClientSecret == nil {
		return nil, errors.New("embedcheckouttest: fetchClientSecret is required")
	}
	h := &Handle{}
	for range f.Invocations {
		secret, err := cfg.FetchClientSecret.FetchClientSecret(ctx)
		if err != nil {
			return nil, fmt.Errorf("embedcheckouttest: fetch client secret: %w", err)
		}
		f.mu.Lock()
		f.secrets = append(f.secrets, secret)
		f.mu.Unlock()
		h.mu.Lock()
		h.secrets = append(h.secrets, secret)
		h.mu.Unlock()
	}
	f.mu.Lock()
	f.handles = append(f.handles, h)
	f.mu.Unlock()
	return h, nil
}

// Configs returns every configuration the factory received.
func (f *Factory) Configs() []embedcheckout.WidgetConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]embedcheckout.WidgetConfig(nil), f.configs...)
}

// Secrets returns every credential the provider handed out, in order.
func (f *Factory) Secrets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.secrets...)
}

// Handles returns every handle the factory produced.
func (f *Factory) Handles() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Handle(nil), f.handles...)
}

// Handle is an in-memory [embedcheckout.WidgetHandle].
type Handle struct {
	// MountErr, when set, is returned by Mount.
	MountErr error
	// DestroyErr, when set, is returned by Destroy.
	DestroyErr error

	mu        sync.Mutex
	secrets   []string
	mounts    []string
	destroyed bool
}

// Mount implements [embedcheckout.WidgetHandle]. A second call fails.
func (h *Handle) Mount(_ context.Context, target string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mounts = append(h.mounts, target)
	if h.MountErr != nil {
		return h.MountErr
	}
	if h.destroyed {
		return errors.New("embedcheckouttest: mount after destroy")
	}
	if len(h.mounts) > 1 {
		return errors.New("embedcheckouttest: widget already mounted")
	}
	return nil
}

// Destroy implements [embedcheckout.WidgetHandle].
func (h *Handle) Destroy(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.destroyed = true
	return h.DestroyErr
}

// Mounts returns every target Mount was called with.
func (h *Handle) Mounts() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.mounts...)
}

// Secrets returns the credentials this widget received.
func (h *Handle) Secrets() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.secrets...)
}

// Destroyed reports whether Destroy was called.
func (h *Handle) Destroyed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.destroyed
}

// Surface is an in-memory [embedcheckout.Surface] holding a fixed set of
// mount targets.
type Surface map[string]bool

// NewSurface returns a Surface containing targets.
func NewSurface(targets ...string) Surface {
	s := make(Surface, len(targets))
	for _, t := range targets {
		s[t] = true
	}
	return s
}

// HasTarget implements [embedcheckout.Surface].
func (s Surface) HasTarget(target string) bool {
	return s[target]
}
