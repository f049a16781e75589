package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"karaoke/config"
	"karaoke/model"
)

// PayPal 事件类型
const (
	PayPalSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	PayPalSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	PayPalSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	PayPalSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
)

// PayPalVerifier checks webhooks through PayPal's verify-webhook-signature API.
type PayPalVerifier struct {
	clientID  string
	secret    string
	webhookID string
	baseURL   string

	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPalVerifier 创建 PayPal 回调校验器
func NewPayPalVerifier(cfg *config.Config) *PayPalVerifier {
	return &PayPalVerifier{
		clientID:  cfg.PayPalClientID,
		secret:    cfg.PayPalSecret,
		webhookID: cfg.PayPalWebhookID,
		baseURL:   strings.TrimRight(cfg.PayPalAPIBase, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// SetBaseURL 设置API基础URL
func (p *PayPalVerifier) SetBaseURL(u string) {
	p.baseURL = strings.TrimRight(u, "/")
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID       string `json:"id"`
		CustomID string `json:"custom_id"`
		Status   string `json:"status"`
	} `json:"resource"`
}

// ParseWebhook verifies the transmission headers with PayPal and maps the event.
func (p *PayPalVerifier) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*Event, error) {
	if p.clientID == "" || p.secret == "" || p.webhookID == "" {
		return nil, fmt.Errorf("%w: paypal", ErrNotConfigured)
	}

	var raw paypalEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode paypal event: %w", err)
	}

	if err := p.verify(ctx, header, body); err != nil {
		return nil, err
	}

	ev := &Event{
		Provider:       model.PaymentProviderPayPal,
		ID:             raw.ID,
		Type:           raw.EventType,
		SubscriptionID: raw.Resource.ID,
	}
	switch raw.EventType {
	case PayPalSubscriptionActivated:
		ev.Action = ActionGrant
		// custom_id 在创建订阅时写入用户ID
		if id, err := strconv.ParseInt(raw.Resource.CustomID, 10, 64); err == nil {
			ev.UserID = id
		}
	case PayPalSubscriptionCancelled, PayPalSubscriptionSuspended, PayPalSubscriptionExpired:
		ev.Action = ActionRevoke
	}
	return ev, nil
}

func (p *PayPalVerifier) verify(ctx context.Context, header http.Header, body []byte) error {
	token, err := p.token(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"auth_algo":         header.Get("PAYPAL-AUTH-ALGO"),
		"cert_url":          header.Get("PAYPAL-CERT-URL"),
		"transmission_id":   header.Get("PAYPAL-TRANSMISSION-ID"),
		"transmission_sig":  header.Get("PAYPAL-TRANSMISSION-SIG"),
		"transmission_time": header.Get("PAYPAL-TRANSMISSION-TIME"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(body),
	})
	if err != nil {
		return fmt.Errorf("failed to encode verification request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/notifications/verify-webhook-signature", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.do(req, &result); err != nil {
		return fmt.Errorf("%w: paypal signature verification request failed: %w", ErrProviderUnavailable, err)
	}
	if result.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: paypal status %q", ErrInvalidSignature, result.VerificationStatus)
	}
	return nil
}

// token returns a cached OAuth access token, refreshing it shortly before expiry.
func (p *PayPalVerifier) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.clientID, p.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := p.do(req, &result); err != nil {
		return "", fmt.Errorf("failed to get paypal access token: %w", err)
	}

	p.accessToken = result.AccessToken
	p.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - time.Minute)
	return p.accessToken, nil
}

func (p *PayPalVerifier) do(req *http.Request, out interface{}) error {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
