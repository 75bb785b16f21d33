package embedcheckout

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
)

// Adapter bootstraps embedded checkout widgets. It fetches session
// credentials lazily through a [CredentialProvider], hands the provider to a
// [WidgetFactory] and mounts the resulting widget.
type Adapter struct {
	factory WidgetFactory
	source  CredentialProvider
	cfg     config
}

// NewAdapter builds an [Adapter]. The factory is an explicitly constructed
// SDK client; source is usually a [*SessionFetcher].
func NewAdapter(factory WidgetFactory, source CredentialProvider, opts ...Option) *Adapter {
	if factory == nil {
		panic("embedcheckout: widget factory is required")
	}
	if source == nil {
		panic("embedcheckout: credential provider is required")
	}
	cfg := config{
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return &Adapter{
		factory: factory,
		source:  source,
		cfg:     cfg,
	}
}

// Initialize runs one bootstrap sequence: it initializes a widget with a
// fresh credential provider and mounts it into mountTarget.
//
// Errors are one of [*SessionFetchError] or [*MalformedCredentialError] when
// the widget gave up because the credential could not be fetched,
// [*WidgetInitError], or [*MountTargetNotFoundError]. Nothing is mounted
// when an error is returned. The adapter never retries.
//
// ctx bounds the factory call and the mount. Credential fetches are bound to
// the context the widget passes to the provider and to the lifetime of the
// returned [Checkout].
func (a *Adapter) Initialize(ctx context.Context, mountTarget string) (*Checkout, error) {
	mountTarget = strings.TrimSpace(mountTarget)
	if mountTarget == "" {
		return nil, &MountTargetNotFoundError{Target: mountTarget}
	}
	if a.cfg.optionsErr != nil {
		return nil, &WidgetInitError{Err: a.cfg.optionsErr}
	}

	logger := a.cfg.logger.With("mount_target", mountTarget)
	lifetime, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := &Checkout{
		target: mountTarget,
		cancel: cancel,
		logger: logger,
	}
	provider := c.provider(lifetime, a.source)

	logger.DebugContext(ctx, "initializing embedded checkout")
	handle, err := a.factory.InitEmbeddedCheckout(ctx, WidgetConfig{
		FetchClientSecret: provider,
		Options:           a.cfg.widgetOptions,
	})
	if err != nil {
		cancel()
		if credErr := credentialError(err); credErr != nil {
			logger.WarnContext(ctx, "widget aborted on credential failure", "error", credErr, "fetches", c.Fetches())
			return nil, credErr
		}
		logger.ErrorContext(ctx, "widget factory failed", "error", err)
		return nil, &WidgetInitError{Err: err}
	}
	if handle == nil {
		cancel()
		return nil, &WidgetInitError{Err: errors.New("widget factory returned no handle")}
	}
	c.handle = handle

	if a.cfg.surface != nil && !a.cfg.surface.HasTarget(mountTarget) {
		c.discard(ctx)
		logger.WarnContext(ctx, "mount target not found")
		return nil, &MountTargetNotFoundError{Target: mountTarget}
	}
	if err := handle.Mount(ctx, mountTarget); err != nil {
		c.discard(ctx)
		var targetErr *MountTargetNotFoundError
		if errors.As(err, &targetErr) {
			return nil, targetErr
		}
		if errors.Is(err, ErrMountTargetNotFound) {
			return nil, &MountTargetNotFoundError{Target: mountTarget, Err: err}
		}
		logger.ErrorContext(ctx, "mount failed", "error", err)
		return nil, &WidgetInitError{Err: err}
	}
	logger.InfoContext(ctx, "embedded checkout mounted", "fetches", c.Fetches())
	return c, nil
}

// Checkout is a mounted widget. It lives as long as the host page.
type Checkout struct {
	handle  WidgetHandle
	target  string
	fetches atomic.Int64
	cancel  context.CancelFunc
	logger  *slog.Logger

	destroyOnce sync.Once
	destroyErr  error
}

// Handle returns the widget handle produced by the factory.
func (c *Checkout) Handle() WidgetHandle {
	return c.handle
}

// Target returns the mount target the widget was attached to.
func (c *Checkout) Target() string {
	return c.target
}

// Fetches reports how many times the widget invoked the credential provider.
func (c *Checkout) Fetches() int {
	return int(c.fetches.Load())
}

// Destroy cancels in-flight credential fetches and tears the widget down.
// Only the first call reaches the widget; later calls return its result.
func (c *Checkout) Destroy(ctx context.Context) error {
	c.destroyOnce.Do(func() {
		c.cancel()
		if c.handle != nil {
			c.destroyErr = c.handle.Destroy(ctx)
		}
	})
	return c.destroyErr
}

// discard releases a handle that never got mounted.
func (c *Checkout) discard(ctx context.Context) {
	if err := c.Destroy(ctx); err != nil {
		c.logger.WarnContext(ctx, "destroy unmounted widget", "error", err)
	}
}

// provider returns the per-bootstrap credential provider. Each invocation
// performs its own fetch; no result is shared between invocations.
func (c *Checkout) provider(lifetime context.Context, source CredentialProvider) CredentialProvider {
	return CredentialProviderFunc(func(ctx context.Context) (string, error) {
		attempt := c.fetches.Add(1)
		if err := lifetime.Err(); err != nil {
			return "", &SessionFetchError{Err: err}
		}
		fetchCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		stop := context.AfterFunc(lifetime, cancel)
		defer stop()

		secret, err := source.FetchClientSecret(fetchCtx)
		if err != nil {
			c.logger.WarnContext(ctx, "credential fetch failed", "attempt", attempt, "error", err)
			return "", err
		}
		c.logger.DebugContext(ctx, "credential fetched", "attempt", attempt)
		return secret, nil
	})
}
