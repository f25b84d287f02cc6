package domain

import "context"

// Repository owns subscription records and the accepted-operation counter.
// Implementations hand out copies; callers persist changes through Update.
type Repository interface {
	Get(ctx context.Context, subscriberID string) (*Subscription, error)
	Insert(ctx context.Context, subscription *Subscription) error
	Update(ctx context.Context, subscription *Subscription) error
	List(ctx context.Context) ([]Subscription, error)
	Count(ctx context.Context) (int, error)

	IncrementOperations(ctx context.Context) (uint64, error)
	TotalOperations(ctx context.Context) (uint64, error)
}
