package domain

import (
	"context"
	"errors"
	"fmt"
)

type SubscribeRequest struct {
	SubscriberID string
	Amount       float64
}

type PayRequest struct {
	SubscriberID string
	Amount       float64
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error)
	Check(ctx context.Context, subscriberID string) (CheckResult, error)
	Pay(ctx context.Context, req PayRequest) (Subscription, error)

	Get(ctx context.Context, subscriberID string) (Subscription, error)
	List(ctx context.Context) ([]Subscription, error)
	Count(ctx context.Context) (int, error)

	// RecordOperation counts one accepted advance request.
	RecordOperation(ctx context.Context) (uint64, error)
	TotalOperations(ctx context.Context) (uint64, error)
}

var (
	ErrInvalidConfig = errors.New("invalid_config")
	ErrNotFound      = errors.New("subscription_not_found")
)

// Validation errors are business-rule outcomes. They are reported back to the
// caller as plain messages and never fail the enclosing request.
var (
	ErrAlreadySubscribed  = errors.New("already_subscribed")
	ErrNotSubscribed      = errors.New("not_subscribed")
	ErrInsufficientAmount = errors.New("insufficient_amount")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrMissingSubscriber  = errors.New("missing_subscriber")
)

// InsufficientAmountError carries the minimum that was not met.
type InsufficientAmountError struct {
	Amount  float64
	Minimum float64
}

func (e *InsufficientAmountError) Error() string {
	return fmt.Sprintf("insufficient_amount: %v below minimum %v", e.Amount, e.Minimum)
}

func (e *InsufficientAmountError) Is(target error) bool {
	return target == ErrInsufficientAmount
}

// IsValidation reports whether err is a business-rule violation.
func IsValidation(err error) bool {
	switch {
	case errors.Is(err, ErrAlreadySubscribed),
		errors.Is(err, ErrNotSubscribed),
		errors.Is(err, ErrInsufficientAmount),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrMissingSubscriber):
		return true
	default:
		return false
	}
}
