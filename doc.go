// Package embedcheckout boots an embedded payment checkout widget from a
// server-issued client secret and mounts it onto a page target.
//
// # Adapter
//
// Use [NewAdapter] with a [WidgetFactory] (the payment provider's widget
// library) and a [CredentialProvider] (usually a [SessionFetcher]). Each call
// to [Adapter.Initialize] hands the factory a fresh credential provider,
// waits for the widget handle and mounts it exactly once. The provider is
// never invoked by the adapter itself; the widget decides when to ask for a
// client secret, and it may ask again later.
//
// The returned [Checkout] owns the mounted widget. [Checkout.Destroy] tears
// it down and cancels any credential fetch still in flight.
//
// # Session fetcher
//
// [NewSessionFetcher] builds a [CredentialProvider] that POSTs to a
// session-issuance endpoint and reads the client secret from the JSON reply.
// Options such as [WithAPIKey] and [WithRequestSigner] match the
// authentication and canonical JSON signatures enforced by the sessionserver
// package.
//
// # Errors
//
// Initialize fails fast, without retries, with one of:
//
//   - [*SessionFetchError]: the endpoint was unreachable or answered non-2xx.
//   - [*MalformedCredentialError]: the reply had no usable client secret.
//   - [*WidgetInitError]: the widget library rejected initialization.
//   - [*MountTargetNotFoundError]: the page has no such mount target.
//
// Match them with [errors.As]. A failed Initialize never leaves a mounted
// widget behind.
package embedcheckout
