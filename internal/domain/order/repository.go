package order

import "context"

// Repository is the order store collaborator. Each call is its own
// transaction.
type Repository interface {
	// Find returns the order or ErrOrderNotFound.
	Find(ctx context.Context, orderID string) (*Order, error)
	// UpdateStatus persists a new status for the order.
	UpdateStatus(ctx context.Context, o *Order, status Status) error
}
