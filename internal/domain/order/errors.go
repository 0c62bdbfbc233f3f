package order

import (
	"errors"
	"fmt"
)

// Domain errors for order.
var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrInvalidUpdate  = errors.New("invalid status update")
	ErrMissingOrderID = fmt.Errorf("%w: orderId is required", ErrInvalidUpdate)
	ErrMissingStatus  = fmt.Errorf("%w: status is required", ErrInvalidUpdate)
)
