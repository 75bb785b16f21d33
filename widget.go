package embedcheckout

import (
	"context"
	"encoding/json"
)

// CredentialProvider hands out session credentials on demand. The widget,
// not the adapter, decides when and how often it is called.
type CredentialProvider interface {
	FetchClientSecret(ctx context.Context) (string, error)
}

// CredentialProviderFunc lifts bare functions into [CredentialProvider].
type CredentialProviderFunc func(ctx context.Context) (string, error)

// FetchClientSecret calls the wrapped function.
func (f CredentialProviderFunc) FetchClientSecret(ctx context.Context) (string, error) {
	return f(ctx)
}

// WidgetConfig is the configuration handed to a [WidgetFactory].
type WidgetConfig struct {
	// FetchClientSecret must be invoked lazily by the widget.
	FetchClientSecret CredentialProvider
	// Options carries widget specific settings untouched, as a JSON object.
	// Nil when none were configured.
	Options json.RawMessage
}

// WidgetFactory builds embeddable checkout widgets. Implementations wrap the
// payment provider's SDK client.
type WidgetFactory interface {
	InitEmbeddedCheckout(ctx context.Context, cfg WidgetConfig) (WidgetHandle, error)
}

// WidgetFactoryFunc lifts bare functions into [WidgetFactory].
type WidgetFactoryFunc func(ctx context.Context, cfg WidgetConfig) (WidgetHandle, error)

// InitEmbeddedCheckout calls the wrapped function.
func (f WidgetFactoryFunc) InitEmbeddedCheckout(ctx context.Context, cfg WidgetConfig) (WidgetHandle, error) {
	return f(ctx, cfg)
}

// WidgetHandle is the opaque widget instance returned by a [WidgetFactory].
type WidgetHandle interface {
	// Mount attaches the widget to target. Implementations should return an
	// error wrapping [ErrMountTargetNotFound] when target cannot be resolved.
	Mount(ctx context.Context, target string) error
	// Destroy releases the widget and removes it from the host surface.
	Destroy(ctx context.Context) error
}

// Surface resolves mount targets in the host document.
type Surface interface {
	HasTarget(target string) bool
}

// SurfaceFunc lifts bare functions into [Surface].
type SurfaceFunc func(target string) bool

// HasTarget calls the wrapped function.
func (f SurfaceFunc) HasTarget(target string) bool {
	return f(target)
}
