package billing

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/subscription"
)

// SubscriptionAPI is the slice of the Stripe subscription surface the service
// needs, wrapped so tests can substitute a fake
type SubscriptionAPI interface {
	Get(ctx context.Context, id string) (*stripe.Subscription, error)
	ListActive(ctx context.Context, customerID string, limit int64) ([]*stripe.Subscription, error)
}

type liveSubscriptionAPI struct{}

func (liveSubscriptionAPI) Get(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(id, params)
}

func (liveSubscriptionAPI) ListActive(ctx context.Context, customerID string, limit int64) ([]*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(limit)

	var subs []*stripe.Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, iter.Subscription())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}
