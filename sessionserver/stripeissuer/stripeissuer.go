// Package stripeissuer issues embedded Stripe Checkout Sessions for
// [sessionserver.Handler].
package stripeissuer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/sumup/embedcheckout/sessionserver"
)

// sessionIDPlaceholder is expanded by Stripe into the checkout session ID.
const sessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

var (
	currencyPattern = regexp.MustCompile(`^[a-z]{3}$`)
	validate        = newValidator()
)

// Config describes the single line item sold through the embedded checkout.
type Config struct {
	SecretKey   string `json:"secret_key" validate:"required"`
	ReturnURL   string `json:"return_url" validate:"required,http_url"`
	Currency    string `json:"currency" validate:"required,currency"`
	UnitAmount  int64  `json:"unit_amount" validate:"gt=0"`
	ProductName string `json:"product_name" validate:"required"`
	Quantity    int64  `json:"quantity" validate:"gte=0"`

	// Backend overrides the Stripe API backend, mainly for tests.
	Backend stripe.Backend `json:"-"`
}

// Issuer implements [sessionserver.Issuer] with Stripe Checkout Sessions
// in embedded UI mode.
type Issuer struct {
	sessions session.Client
	cfg      Config
}

var _ sessionserver.Issuer = (*Issuer)(nil)

// New validates cfg and builds an [Issuer] with its own Stripe client.
func New(cfg Config) (*Issuer, error) {
	cfg.Currency = strings.ToLower(strings.TrimSpace(cfg.Currency))
	if cfg.Quantity == 0 {
		cfg.Quantity = 1
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("stripeissuer: %w", normalizeValidationError(err))
	}
	backend := cfg.Backend
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Issuer{
		sessions: session.Client{B: backend, Key: cfg.SecretKey},
		cfg:      cfg,
	}, nil
}

// IssueSession creates an embedded checkout session for the configured item.
func (i *Issuer) IssueSession(ctx context.Context) (*sessionserver.Session, error) {
	params := &stripe.CheckoutSessionParams{
		UIMode:    stripe.String(string(stripe.CheckoutSessionUIModeEmbedded)),
		Mode:      stripe.String(string(stripe.CheckoutSessionModePayment)),
		ReturnURL: stripe.String(returnURL(i.cfg.ReturnURL)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(i.cfg.Currency),
					UnitAmount: stripe.Int64(i.cfg.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(i.cfg.ProductName),
					},
				},
				Quantity: stripe.Int64(i.cfg.Quantity),
			},
		},
	}
	params.Context = ctx
	if rc := sessionserver.RequestContextFromContext(ctx); rc != nil && rc.RequestID != "" {
		params.SetIdempotencyKey(rc.RequestID)
	}

	s, err := i.sessions.New(params)
	if err != nil {
		return nil, mapError("create checkout session", err)
	}
	return &sessionserver.Session{ID: s.ID, ClientSecret: s.ClientSecret}, nil
}

// SessionStatus reports the checkout session status and customer email.
func (i *Issuer) SessionStatus(ctx context.Context, id string) (*sessionserver.Status, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := i.sessions.Get(id, params)
	if err != nil {
		return nil, mapError("retrieve checkout session", err)
	}
	status := &sessionserver.Status{
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
	}
	if s.CustomerDetails != nil {
		status.CustomerEmail = s.CustomerDetails.Email
	}
	return status, nil
}

// returnURL appends the session_id query parameter Stripe fills in.
func returnURL(base string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "session_id=" + sessionIDPlaceholder
}

// mapError converts Stripe API errors into handler error payloads.
func mapError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return sessionserver.NewServiceUnavailableError(fmt.Sprintf("%s: payment provider unreachable", op))
	}
	switch {
	case stripeErr.HTTPStatusCode == http.StatusNotFound:
		return sessionserver.NewNotFoundError("no such checkout session")
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests:
		return sessionserver.NewRateLimitExceededError("payment provider rate limit exceeded")
	case stripeErr.Type == stripe.ErrorTypeInvalidRequest && stripeErr.HTTPStatusCode == http.StatusBadRequest:
		if stripeErr.Param != "" {
			return sessionserver.NewInvalidRequestError(stripeErr.Msg, sessionserver.WithOffendingParam(stripeErr.Param))
		}
		return sessionserver.NewInvalidRequestError(stripeErr.Msg)
	default:
		return sessionserver.NewProcessingError(fmt.Sprintf("%s failed", op))
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	if err := v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		value, ok := fl.Field().Interface().(string)
		if !ok {
			return false
		}
		return currencyPattern.MatchString(value)
	}); err != nil {
		panic(err)
	}
	return v
}

func normalizeValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	first := validationErrs[0]
	return fmt.Errorf("%s %s", first.Field(), validationMessage(first))
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "http_url":
		return "must be an absolute http(s) URL"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "currency":
		return "must be a 3-letter ISO-4217 code"
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
