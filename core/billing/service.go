package billing

import (
	"context"
	"errors"
	"fmt"

	"karaoke/logger"
	"karaoke/model"
	"karaoke/repository"
)

var (
	// ErrInvalidSignature webhook 签名校验失败
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownUser the event cannot be tied to a user; redelivery will not help
	ErrUnknownUser = errors.New("webhook event does not reference a known user")
	// ErrNotConfigured the payment provider has no credentials
	ErrNotConfigured = errors.New("payment provider not configured")
	// ErrProviderUnavailable the provider could not be reached; redelivery may help
	ErrProviderUnavailable = errors.New("payment provider unavailable")
)

// Action is what a webhook event does to the premium flag.
type Action int

const (
	ActionIgnore Action = iota
	ActionGrant
	ActionRevoke
)

func (a Action) String() string {
	switch a {
	case ActionGrant:
		return "grant"
	case ActionRevoke:
		return "revoke"
	default:
		return "ignore"
	}
}

// Event is a verified provider webhook reduced to what the service needs.
type Event struct {
	Provider       string
	ID             string
	Type           string
	Action         Action
	UserID         int64  // 0 if the event only names a customer/subscription
	CustomerID     string // stripe
	SubscriptionID string // paypal
}

// Service applies webhook events to users exactly once.
type Service struct {
	users  repository.UserRepository
	events repository.PaymentEventRepository
}

// NewService creates a billing service.
func NewService(users repository.UserRepository, events repository.PaymentEventRepository) *Service {
	return &Service{users: users, events: events}
}

// Apply grants or revokes premium for ev. Redelivered events are skipped and
// reported as not applied.
func (s *Service) Apply(ctx context.Context, ev *Event) (bool, error) {
	if ev.Action == ActionIgnore {
		logger.Debug("[Billing] ignoring event",
			logger.String("provider", ev.Provider),
			logger.String("type", ev.Type))
		return false, nil
	}

	userID, err := s.resolveUser(ctx, ev)
	if err != nil {
		return false, err
	}

	recorded, err := s.events.Record(ctx, &model.PaymentEvent{
		Provider:  ev.Provider,
		EventID:   ev.ID,
		EventType: ev.Type,
		UserID:    userID,
	})
	if err != nil {
		return false, err
	}
	if !recorded {
		logger.Info("[Billing] duplicate event skipped",
			logger.String("provider", ev.Provider),
			logger.String("event", ev.ID))
		return false, nil
	}

	if err := s.apply(ctx, userID, ev); err != nil {
		if ferr := s.events.Forget(ctx, ev.Provider, ev.ID); ferr != nil {
			logger.Error("[Billing] failed to forget event after error",
				logger.String("event", ev.ID),
				logger.ErrorField(ferr))
		}
		return false, err
	}

	logger.Info("[Billing] premium updated",
		logger.String("provider", ev.Provider),
		logger.String("event", ev.ID),
		logger.String("action", ev.Action.String()),
		logger.Int64("user", userID))
	return true, nil
}

func (s *Service) resolveUser(ctx context.Context, ev *Event) (int64, error) {
	if ev.UserID > 0 {
		return ev.UserID, nil
	}

	var (
		u   *model.User
		err error
	)
	switch {
	case ev.CustomerID != "":
		u, err = s.users.GetUserByStripeCustomerID(ctx, ev.CustomerID)
	case ev.SubscriptionID != "":
		u, err = s.users.GetUserByPayPalSubscriptionID(ctx, ev.SubscriptionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up user for %s event %s: %w", ev.Provider, ev.ID, err)
	}
	if u == nil {
		return 0, fmt.Errorf("%w: %s event %s", ErrUnknownUser, ev.Provider, ev.ID)
	}
	return u.ID, nil
}

func (s *Service) apply(ctx context.Context, userID int64, ev *Event) error {
	premium := ev.Action == ActionGrant
	if err := s.users.SetPremium(ctx, userID, premium, ev.Provider); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: user %d", ErrUnknownUser, userID)
		}
		return err
	}
	if !premium {
		return nil
	}

	if ev.CustomerID != "" {
		if err := s.users.SetStripeCustomerID(ctx, userID, ev.CustomerID); err != nil {
			return err
		}
	}
	if ev.SubscriptionID != "" {
		if err := s.users.SetPayPalSubscriptionID(ctx, userID, ev.SubscriptionID); err != nil {
			return err
		}
	}
	return nil
}
