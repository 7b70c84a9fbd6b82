package checkout

import (
	"errors"
	"strings"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrEmptyCart    = errors.New("cart is empty")
	ErrInProgress   = errors.New("order submission already in progress")
)

// FailureNotice is shown to the visitor when an order could not be placed.
const FailureNotice = "Произошла ошибка при оформлении заказа. Попробуйте еще раз."

// ValidationError lists the required contact fields that were left blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}
