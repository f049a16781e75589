package server

import (
	"errors"
	"io"
	"net/http"

	"karaoke/core/billing"
	"karaoke/logger"
)

const maxWebhookBody = 64 << 10

// StripeCheckoutHandler POST /api/billing/stripe/checkout
func (h *APIHandler) StripeCheckoutHandler(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}
	user, err := h.currentUser(r)
	if err != nil {
		writeAuthLookupError(w, err)
		return
	}
	if user.Premium {
		writeError(w, http.StatusConflict, "Already premium")
		return
	}

	url, err := h.stripe.CreateCheckout(r.Context(), user)
	if err != nil {
		if errors.Is(err, billing.ErrNotConfigured) {
			writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
			return
		}
		writeInternal(w, "Billing", err)
		return
	}
	writeOK(w, map[string]interface{}{"url": url})
}

// StripeWebhookHandler POST /api/webhooks/stripe
func (h *APIHandler) StripeWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		writeError(w, http.StatusServiceUnavailable, "Stripe not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	ev, err := h.stripe.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	h.applyWebhook(w, r, ev, err)
}

// PayPalWebhookHandler POST /api/webhooks/paypal
func (h *APIHandler) PayPalWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.paypal == nil {
		writeError(w, http.StatusServiceUnavailable, "PayPal not configured")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	ev, err := h.paypal.ParseWebhook(r.Context(), r.Header, body)
	h.applyWebhook(w, r, ev, err)
}

// applyWebhook answers 2xx for anything a redelivery would not fix, so the
// provider only retries transient failures.
func (h *APIHandler) applyWebhook(w http.ResponseWriter, r *http.Request, ev *billing.Event, parseErr error) {
	if parseErr != nil {
		switch {
		case errors.Is(parseErr, billing.ErrNotConfigured):
			writeError(w, http.StatusServiceUnavailable, "Provider not configured")
		case errors.Is(parseErr, billing.ErrProviderUnavailable):
			// 5xx 让服务商稍后重投
			writeInternal(w, "Billing", parseErr)
		case errors.Is(parseErr, billing.ErrInvalidSignature):
			logger.Warn("[Billing] rejected webhook", logger.ErrorField(parseErr))
			writeError(w, http.StatusBadRequest, "Invalid signature")
		default:
			logger.Warn("[Billing] malformed webhook", logger.ErrorField(parseErr))
			writeError(w, http.StatusBadRequest, "Malformed event")
		}
		return
	}

	applied, err := h.billing.Apply(r.Context(), ev)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownUser) {
			logger.Warn("[Billing] event for unknown user",
				logger.String("provider", ev.Provider),
				logger.String("event", ev.ID),
				logger.ErrorField(err))
			writeOK(w, map[string]interface{}{"applied": false})
			return
		}
		writeInternal(w, "Billing", err)
		return
	}
	writeOK(w, map[string]interface{}{"applied": applied})
}
