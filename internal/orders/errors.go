package orders

import "errors"

var (
	ErrStatusFinal   = errors.New("order status is final")
	ErrInvalidStatus = errors.New("invalid order status")
	ErrEmptyOrder    = errors.New("order has no items")
)
