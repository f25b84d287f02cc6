package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/subscription-coprocessor/internal/clock"
	"github.com/smallbiznis/subscription-coprocessor/internal/config"
	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log *zap.Logger

	genID  *snowflake.Node
	clock  clock.Clock
	policy *config.PolicyHolder
	repo   subscriptiondomain.Repository
}

type ServiceParam struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy *config.PolicyHolder
	Repo   subscriptiondomain.Repository
}

func NewService(p ServiceParam) (subscriptiondomain.Service, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil || p.Repo == nil {
		return nil, subscriptiondomain.ErrInvalidConfig
	}
	return &Service{
		log: p.Log.Named("subscription.service"),

		genID:  p.GenID,
		clock:  p.Clock,
		policy: p.Policy,
		repo:   p.Repo,
	}, nil
}

// Subscribe creates the record for a new subscriber. The amount seeds the
// balance as-is unless the policy enforces the payment minimum here too.
func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (subscriptiondomain.Subscription, error) {
	subscriberID := strings.TrimSpace(req.SubscriberID)
	if subscriberID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrMissingSubscriber
	}
	if !validAmount(req.Amount) {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}

	existing, err := s.repo.Get(ctx, subscriberID)
	switch {
	case err == nil:
		return *existing, subscriptiondomain.ErrAlreadySubscribed
	case !errors.Is(err, subscriptiondomain.ErrNotFound):
		return subscriptiondomain.Subscription{}, err
	}

	policy := s.policy.Get()
	if policy.EnforceMinimumOnSubscribe && req.Amount < policy.MinimumPayment {
		return subscriptiondomain.Subscription{}, &subscriptiondomain.InsufficientAmountError{
			Amount:  req.Amount,
			Minimum: policy.MinimumPayment,
		}
	}

	now := s.clock.Now()
	subscription := subscriptiondomain.Subscription{
		ID:           s.genID.Generate(),
		SubscriberID: subscriberID,
		Subscribed:   true,
		ExpiryDate:   subscriptiondomain.DateOf(now).AddMonths(policy.PeriodMonths),
		Balance:      req.Amount,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, &subscription); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Debug("subscription created",
		zap.String("subscriber_id", subscriberID),
		zap.String("subscription_id", subscription.ID.String()),
		zap.Stringer("expiry_date", subscription.ExpiryDate),
	)
	return subscription, nil
}

// Check compares the expiry date with the clock. An expired record is marked
// unsubscribed the first time it is observed; later checks leave it untouched.
func (s *Service) Check(ctx context.Context, subscriberID string) (subscriptiondomain.CheckResult, error) {
	subscription, err := s.get(ctx, subscriberID)
	if err != nil {
		return subscriptiondomain.CheckResult{}, err
	}

	now := s.clock.Now()
	if subscription.ExpiryDate.After(now) {
		return subscriptiondomain.CheckResult{
			Subscription: *subscription,
			Status:       subscriptiondomain.CheckStatusActive,
		}, nil
	}

	if subscription.Subscribed {
		subscription.Subscribed = false
		subscription.UpdatedAt = now
		if err := s.repo.Update(ctx, subscription); err != nil {
			return subscriptiondomain.CheckResult{}, err
		}
		s.log.Debug("subscription expired",
			zap.String("subscriber_id", subscription.SubscriberID),
			zap.Stringer("expiry_date", subscription.ExpiryDate),
		)
	}

	return subscriptiondomain.CheckResult{
		Subscription: *subscription,
		Status:       subscriptiondomain.CheckStatusExpired,
	}, nil
}

// Pay extends the expiry date by one period from its current value, not from
// today, and adds the amount to the balance.
func (s *Service) Pay(ctx context.Context, req subscriptiondomain.PayRequest) (subscriptiondomain.Subscription, error) {
	subscription, err := s.get(ctx, req.SubscriberID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if !validAmount(req.Amount) {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidAmount
	}

	policy := s.policy.Get()
	if req.Amount < policy.MinimumPayment {
		return subscriptiondomain.Subscription{}, &subscriptiondomain.InsufficientAmountError{
			Amount:  req.Amount,
			Minimum: policy.MinimumPayment,
		}
	}

	now := s.clock.Now()
	subscription.ExpiryDate = subscription.ExpiryDate.AddMonths(policy.PeriodMonths)
	subscription.Balance += req.Amount
	if subscription.ExpiryDate.After(now) {
		subscription.Subscribed = true
	}
	subscription.UpdatedAt = now

	if err := s.repo.Update(ctx, subscription); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Debug("subscription extended",
		zap.String("subscriber_id", subscription.SubscriberID),
		zap.Float64("amount", req.Amount),
		zap.Stringer("expiry_date", subscription.ExpiryDate),
	)
	return *subscription, nil
}

// Get returns a record without observing expiry.
func (s *Service) Get(ctx context.Context, subscriberID string) (subscriptiondomain.Subscription, error) {
	subscription, err := s.get(ctx, subscriberID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	return *subscription, nil
}

func (s *Service) List(ctx context.Context) ([]subscriptiondomain.Subscription, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func (s *Service) RecordOperation(ctx context.Context) (uint64, error) {
	return s.repo.IncrementOperations(ctx)
}

func (s *Service) TotalOperations(ctx context.Context) (uint64, error) {
	return s.repo.TotalOperations(ctx)
}

func (s *Service) get(ctx context.Context, subscriberID string) (*subscriptiondomain.Subscription, error) {
	subscriberID = strings.TrimSpace(subscriberID)
	if subscriberID == "" {
		return nil, subscriptiondomain.ErrMissingSubscriber
	}
	subscription, err := s.repo.Get(ctx, subscriberID)
	if errors.Is(err, subscriptiondomain.ErrNotFound) {
		return nil, subscriptiondomain.ErrNotSubscribed
	}
	if err != nil {
		return nil, err
	}
	return subscription, nil
}

func validAmount(amount float64) bool {
	return !math.IsNaN(amount) && !math.IsInf(amount, 0)
}
