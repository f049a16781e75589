package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"karaoke/config"
	"karaoke/model"
	"karaoke/repository"
	"karaoke/repository/memrepo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

func testLimits() Limits {
	return Limits{FreeMaxPlaylists: 3, FreeMaxPlaylistSongs: 20, FreeMaxFavorites: 10, CrossfadeSeconds: 6}
}

func TestLimits_For(t *testing.T) {
	l := testLimits()

	free := l.For(&model.User{ID: 1})
	assert.False(t, free.Premium)
	assert.False(t, free.Crossfade)
	assert.Equal(t, 3, free.MaxPlaylists)
	assert.True(t, free.CanCreatePlaylist(2))
	assert.False(t, free.CanCreatePlaylist(3))
	assert.True(t, free.CanAddPlaylistSong(19))
	assert.False(t, free.CanAddPlaylistSong(20))
	assert.False(t, free.CanAddFavorite(10))

	assert.Equal(t, free, l.For(nil))

	premium := l.For(&model.User{ID: 2, Premium: true})
	assert.True(t, premium.Premium)
	assert.True(t, premium.Crossfade)
	assert.InDelta(t, 6.0, premium.CrossfadeSeconds, 1e-9)
	assert.Equal(t, Unlimited, premium.MaxFavorites)
	assert.True(t, premium.CanCreatePlaylist(1000))
	assert.True(t, premium.CanAddFavorite(1000))

	l.CrossfadeSeconds = 0
	assert.False(t, l.For(&model.User{Premium: true}).Crossfade)
}

func newStoreWithUser(t *testing.T) (*memrepo.Store, int64) {
	t.Helper()
	store := memrepo.New()
	id, err := store.Users().CreateUser(context.Background(), &model.User{Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)
	return store, id
}

func TestService_GrantThenDuplicate(t *testing.T) {
	ctx := context.Background()
	store, uid := newStoreWithUser(t)
	svc := NewService(store.Users(), store.PaymentEvents())

	ev := &Event{Provider: model.PaymentProviderStripe, ID: "evt_1", Type: StripeCheckoutCompleted,
		Action: ActionGrant, UserID: uid, CustomerID: "cus_1"}

	applied, err := svc.Apply(ctx, ev)
	require.NoError(t, err)
	assert.True(t, applied)

	u, _ := store.Users().GetUserByID(ctx, uid)
	assert.True(t, u.Premium)
	assert.Equal(t, "cus_1", u.StripeCustomerID)
	assert.Equal(t, model.PaymentProviderStripe, u.PremiumProvider)

	applied, err = svc.Apply(ctx, ev)
	require.NoError(t, err)
	assert.False(t, applied, "redelivered event must be skipped")
	assert.Equal(t, 1, store.EventCount())
}

func TestService_RevokeByCustomer(t *testing.T) {
	ctx := context.Background()
	store, uid := newStoreWithUser(t)
	require.NoError(t, store.Users().SetPremium(ctx, uid, true, model.PaymentProviderStripe))
	require.NoError(t, store.Users().SetStripeCustomerID(ctx, uid, "cus_9"))
	svc := NewService(store.Users(), store.PaymentEvents())

	applied, err := svc.Apply(ctx, &Event{Provider: model.PaymentProviderStripe, ID: "evt_2",
		Type: StripeSubscriptionDeleted, Action: ActionRevoke, CustomerID: "cus_9"})
	require.NoError(t, err)
	assert.True(t, applied)

	u, _ := store.Users().GetUserByID(ctx, uid)
	assert.False(t, u.Premium)
	assert.Nil(t, u.PremiumSince)
}

func TestService_RevokeByPayPalSubscription(t *testing.T) {
	ctx := context.Background()
	store, uid := newStoreWithUser(t)
	require.NoError(t, store.Users().SetPremium(ctx, uid, true, model.PaymentProviderPayPal))
	require.NoError(t, store.Users().SetPayPalSubscriptionID(ctx, uid, "I-SUB"))
	svc := NewService(store.Users(), store.PaymentEvents())

	applied, err := svc.Apply(ctx, &Event{Provider: model.PaymentProviderPayPal, ID: "WH-1",
		Type: PayPalSubscriptionCancelled, Action: ActionRevoke, SubscriptionID: "I-SUB"})
	require.NoError(t, err)
	assert.True(t, applied)

	u, _ := store.Users().GetUserByID(ctx, uid)
	assert.False(t, u.Premium)
}

func TestService_UnknownUser(t *testing.T) {
	ctx := context.Background()
	store, _ := newStoreWithUser(t)
	svc := NewService(store.Users(), store.PaymentEvents())

	_, err := svc.Apply(ctx, &Event{Provider: model.PaymentProviderStripe, ID: "evt_3",
		Action: ActionRevoke, CustomerID: "cus_nobody"})
	assert.ErrorIs(t, err, ErrUnknownUser)

	// 用户ID不存在：记录后失败，需要撤销记录
	_, err = svc.Apply(ctx, &Event{Provider: model.PaymentProviderStripe, ID: "evt_4",
		Action: ActionGrant, UserID: 999})
	assert.ErrorIs(t, err, ErrUnknownUser)
	assert.Equal(t, 0, store.EventCount())
}

func TestService_Ignore(t *testing.T) {
	store, uid := newStoreWithUser(t)
	svc := NewService(store.Users(), store.PaymentEvents())

	applied, err := svc.Apply(context.Background(), &Event{Provider: "stripe", ID: "evt_5", UserID: uid})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, 0, store.EventCount())
}

type flakyUsers struct {
	repository.UserRepository
	fail atomic.Bool
}

func (f *flakyUsers) SetStripeCustomerID(ctx context.Context, userID int64, customerID string) error {
	if f.fail.Load() {
		return errors.New("connection reset")
	}
	return f.UserRepository.SetStripeCustomerID(ctx, userID, customerID)
}

func TestService_FailureAllowsRetry(t *testing.T) {
	ctx := context.Background()
	store, uid := newStoreWithUser(t)
	users := &flakyUsers{UserRepository: store.Users()}
	users.fail.Store(true)
	svc := NewService(users, store.PaymentEvents())

	ev := &Event{Provider: model.PaymentProviderStripe, ID: "evt_6", Action: ActionGrant, UserID: uid, CustomerID: "cus_6"}
	_, err := svc.Apply(ctx, ev)
	require.Error(t, err)
	assert.Equal(t, 0, store.EventCount())

	users.fail.Store(false)
	applied, err := svc.Apply(ctx, ev)
	require.NoError(t, err)
	assert.True(t, applied)
}

const stripeSecret = "whsec_test"

func signedStripe(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    stripeSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func TestStripe_ParseWebhook(t *testing.T) {
	g := NewStripeGateway(&config.Config{StripeWebhookSecret: stripeSecret})

	t.Run("checkout completed", func(t *testing.T) {
		body, sig := signedStripe(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed",
			"data":{"object":{"id":"cs_1","object":"checkout.session","mode":"subscription",
			"client_reference_id":"7","customer":"cus_1"}}}`)
		ev, err := g.ParseWebhook(body, sig)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", ev.ID)
		assert.Equal(t, ActionGrant, ev.Action)
		assert.Equal(t, int64(7), ev.UserID)
		assert.Equal(t, "cus_1", ev.CustomerID)
	})

	t.Run("one-off payment ignored", func(t *testing.T) {
		body, sig := signedStripe(t, `{"id":"evt_2","object":"event","type":"checkout.session.completed",
			"data":{"object":{"id":"cs_2","object":"checkout.session","mode":"payment","client_reference_id":"7"}}}`)
		ev, err := g.ParseWebhook(body, sig)
		require.NoError(t, err)
		assert.Equal(t, ActionIgnore, ev.Action)
	})

	t.Run("subscription deleted", func(t *testing.T) {
		body, sig := signedStripe(t, `{"id":"evt_3","object":"event","type":"customer.subscription.deleted",
			"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1"}}}`)
		ev, err := g.ParseWebhook(body, sig)
		require.NoError(t, err)
		assert.Equal(t, ActionRevoke, ev.Action)
		assert.Equal(t, "cus_1", ev.CustomerID)
	})

	t.Run("bad signature", func(t *testing.T) {
		body, _ := signedStripe(t, `{"id":"evt_4","object":"event","type":"invoice.paid","data":{"object":{}}}`)
		_, err := g.ParseWebhook(body, "t=1,v1=deadbeef")
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("not configured", func(t *testing.T) {
		_, err := NewStripeGateway(&config.Config{}).ParseWebhook([]byte(`{}`), "")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestStripe_CreateCheckout(t *testing.T) {
	g := NewStripeGateway(&config.Config{
		StripePriceID:      "price_1",
		CheckoutSuccessURL: "https://example.com/ok",
		CheckoutCancelURL:  "https://example.com/cancel",
	})

	_, err := g.CreateCheckout(context.Background(), &model.User{ID: 1})
	assert.ErrorIs(t, err, ErrNotConfigured)

	var got *stripe.CheckoutSessionParams
	g.newCheckout = func(p *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
		got = p
		return &stripe.CheckoutSession{URL: "https://checkout.stripe.com/c/1"}, nil
	}

	url, err := g.CreateCheckout(context.Background(), &model.User{ID: 42, Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/1", url)
	require.NotNil(t, got)
	assert.Equal(t, "42", *got.ClientReferenceID)
	assert.Equal(t, "subscription", *got.Mode)
	assert.Equal(t, "a@example.com", *got.CustomerEmail)
	assert.Nil(t, got.Customer)

	_, err = g.CreateCheckout(context.Background(), &model.User{ID: 42, StripeCustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "cus_1", *got.Customer)
}

func newPayPalServer(t *testing.T, status string) (*httptest.Server, *int32) {
	t.Helper()
	var tokenCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "cid" || pass != "sec" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req struct {
			WebhookID    string          `json:"webhook_id"`
			WebhookEvent json.RawMessage `json:"webhook_event"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WebhookID != "wh" || len(req.WebhookEvent) == 0 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": status})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &tokenCalls
}

func newPayPal(baseURL string) *PayPalVerifier {
	p := NewPayPalVerifier(&config.Config{PayPalClientID: "cid", PayPalSecret: "sec", PayPalWebhookID: "wh"})
	p.SetBaseURL(baseURL)
	return p
}

func TestPayPal_ParseWebhook(t *testing.T) {
	srv, tokenCalls := newPayPalServer(t, "SUCCESS")
	p := newPayPal(srv.URL)
	header := http.Header{}
	header.Set("PAYPAL-TRANSMISSION-ID", "tx-1")

	ev, err := p.ParseWebhook(context.Background(), header, []byte(`{"id":"WH-1",
		"event_type":"BILLING.SUBSCRIPTION.ACTIVATED","resource":{"id":"I-SUB","custom_id":"5","status":"ACTIVE"}}`))
	require.NoError(t, err)
	assert.Equal(t, model.PaymentProviderPayPal, ev.Provider)
	assert.Equal(t, ActionGrant, ev.Action)
	assert.Equal(t, int64(5), ev.UserID)
	assert.Equal(t, "I-SUB", ev.SubscriptionID)

	ev, err = p.ParseWebhook(context.Background(), header, []byte(`{"id":"WH-2",
		"event_type":"BILLING.SUBSCRIPTION.EXPIRED","resource":{"id":"I-SUB"}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionRevoke, ev.Action)
	assert.Equal(t, int64(0), ev.UserID)

	ev, err = p.ParseWebhook(context.Background(), header, []byte(`{"id":"WH-3","event_type":"PAYMENT.SALE.COMPLETED","resource":{}}`))
	require.NoError(t, err)
	assert.Equal(t, ActionIgnore, ev.Action)

	assert.Equal(t, int32(1), atomic.LoadInt32(tokenCalls), "access token is cached")
}

func TestPayPal_VerificationFailure(t *testing.T) {
	srv, _ := newPayPalServer(t, "FAILURE")
	p := newPayPal(srv.URL)

	_, err := p.ParseWebhook(context.Background(), http.Header{}, []byte(`{"id":"WH-1","event_type":"BILLING.SUBSCRIPTION.ACTIVATED"}`))
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = p.ParseWebhook(context.Background(), http.Header{}, []byte(`not json`))
	assert.Error(t, err)
}

func TestPayPal_UnreachableIsRetryable(t *testing.T) {
	srv, _ := newPayPalServer(t, "SUCCESS")
	p := newPayPal(srv.URL)
	srv.Close()

	_, err := p.ParseWebhook(context.Background(), http.Header{}, []byte(`{"id":"WH-1","event_type":"BILLING.SUBSCRIPTION.ACTIVATED"}`))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidSignature)
}

func TestPayPal_NotConfigured(t *testing.T) {
	p := NewPayPalVerifier(&config.Config{})
	_, err := p.ParseWebhook(context.Background(), http.Header{}, []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
