package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"karaoke/config"
	"karaoke/model"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe 事件类型
const (
	StripeCheckoutCompleted   = "checkout.session.completed"
	StripeSubscriptionDeleted = "customer.subscription.deleted"
)

// checkoutFunc creates a Checkout Session; replaced in tests.
type checkoutFunc func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// StripeGateway verifies Stripe webhooks and creates subscription checkouts.
type StripeGateway struct {
	webhookSecret string
	priceID       string
	successURL    string
	cancelURL     string
	newCheckout   checkoutFunc
}

// NewStripeGateway creates a gateway with its own API client, leaving the
// package-level stripe.Key untouched.
func NewStripeGateway(cfg *config.Config) *StripeGateway {
	g := &StripeGateway{
		webhookSecret: cfg.StripeWebhookSecret,
		priceID:       cfg.StripePriceID,
		successURL:    cfg.CheckoutSuccessURL,
		cancelURL:     cfg.CheckoutCancelURL,
	}
	if cfg.StripeSecretKey != "" {
		sc := &client.API{}
		sc.Init(cfg.StripeSecretKey, nil)
		g.newCheckout = sc.CheckoutSessions.New
	}
	return g
}

// CreateCheckout starts a subscription checkout for u and returns the hosted page URL.
func (g *StripeGateway) CreateCheckout(ctx context.Context, u *model.User) (string, error) {
	if g.newCheckout == nil || g.priceID == "" {
		return "", fmt.Errorf("%w: stripe", ErrNotConfigured)
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(g.priceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(g.successURL),
		CancelURL:         stripe.String(g.cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(u.ID, 10)),
	}
	if u.StripeCustomerID != "" {
		params.Customer = stripe.String(u.StripeCustomerID)
	} else if u.Email != "" {
		params.CustomerEmail = stripe.String(u.Email)
	}
	params.Context = ctx

	sess, err := g.newCheckout(params)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe checkout session: %w", err)
	}
	return sess.URL, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps the event.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*Event, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: stripe webhook secret", ErrNotConfigured)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{Tolerance: webhook.DefaultTolerance, IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	ev := &Event{
		Provider: model.PaymentProviderStripe,
		ID:       event.ID,
		Type:     string(event.Type),
	}

	switch ev.Type {
	case StripeCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return nil, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		if cs.Mode != stripe.CheckoutSessionModeSubscription {
			return ev, nil
		}
		ev.Action = ActionGrant
		if id, err := strconv.ParseInt(cs.ClientReferenceID, 10, 64); err == nil {
			ev.UserID = id
		}
		if cs.Customer != nil {
			ev.CustomerID = cs.Customer.ID
		}

	case StripeSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to decode subscription: %w", err)
		}
		ev.Action = ActionRevoke
		if sub.Customer != nil {
			ev.CustomerID = sub.Customer.ID
		}
	}
	return ev, nil
}
