package repository

import (
	"context"
	"sort"
	"sync"

	subscriptiondomain "github.com/smallbiznis/subscription-coprocessor/internal/subscription/domain"
)

// repo keeps subscriptions in memory for the lifetime of the process.
// The poll loop is its only writer; the mutex covers admin reads.
type repo struct {
	mu              sync.RWMutex
	subscriptions   map[string]*subscriptiondomain.Subscription
	totalOperations uint64
}

func Provide() subscriptiondomain.Repository {
	return &repo{subscriptions: map[string]*subscriptiondomain.Subscription{}}
}

func (r *repo) Get(ctx context.Context, subscriberID string) (*subscriptiondomain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current, ok := r.subscriptions[subscriberID]
	if !ok {
		return nil, subscriptiondomain.ErrNotFound
	}
	out := *current
	return &out, nil
}

func (r *repo) Insert(ctx context.Context, subscription *subscriptiondomain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subscriptions[subscription.SubscriberID]; ok {
		return subscriptiondomain.ErrAlreadySubscribed
	}
	stored := *subscription
	r.subscriptions[subscription.SubscriberID] = &stored
	return nil
}

func (r *repo) Update(ctx context.Context, subscription *subscriptiondomain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.subscriptions[subscription.SubscriberID]
	if !ok {
		return subscriptiondomain.ErrNotFound
	}
	*current = *subscription
	return nil
}

func (r *repo) List(ctx context.Context) ([]subscriptiondomain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]subscriptiondomain.Subscription, 0, len(r.subscriptions))
	for _, s := range r.subscriptions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SubscriberID < out[j].SubscriberID
	})
	return out, nil
}

func (r *repo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscriptions), nil
}

func (r *repo) IncrementOperations(ctx context.Context) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totalOperations++
	return r.totalOperations, nil
}

func (r *repo) TotalOperations(ctx context.Context) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalOperations, nil
}
