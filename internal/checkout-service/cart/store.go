// Package cart keeps each customer's pre-checkout selection.
//
// Mutations for one customer are serialized by the Store. Callers never
// patch a cart they hold in memory: they mutate through the Store and then
// reload, so what the customer sees is always what was persisted.
package cart

import (
	"context"

	"github.com/jcmexdev/storefront-checkout/internal/checkout-service/domain"
)

// MutateFunc edits a cart inside a serialized update. Returning an error
// aborts the update and leaves the stored cart unchanged.
type MutateFunc func(c *domain.Cart) error

type Store interface {
	Load(ctx context.Context, customerID string) (*domain.Cart, error)
	Update(ctx context.Context, customerID string, fn MutateFunc) error
	Clear(ctx context.Context, customerID string) error
}
