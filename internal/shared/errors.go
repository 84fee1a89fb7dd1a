package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrValidation marks malformed or missing input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a quantity larger than what is on hand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverpayment indicates a payment larger than the outstanding balance.
	ErrOverpayment = errors.New("amount exceeds balance")
)

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Validation builds a ValidationError.
func Validation(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports a missing entity by id.
type NotFoundError struct {
	Entity string
	ID     string
}

// NotFound builds a NotFoundError.
func NotFound(entity string, id fmt.Stringer) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id.String()}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InsufficientStockError names the item that could not be covered.
// Unit is "bags" for products and "kg" for loose stock.
type InsufficientStockError struct {
	ItemID    string
	ItemName  string
	Unit      string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %s %s, available %s %s",
		e.ItemName, e.Requested.String(), e.Unit, e.Available.String(), e.Unit)
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// OverpaymentError is returned when a payment would take the balance below zero.
// It also counts as a validation failure.
type OverpaymentError struct {
	TransactionID string
	Amount        decimal.Decimal
	Balance       decimal.Decimal
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("amount exceeds balance: %s > %s", e.Amount.StringFixed(2), e.Balance.StringFixed(2))
}

// Is matches ErrOverpayment and ErrValidation.
func (e *OverpaymentError) Is(target error) bool {
	return target == ErrOverpayment || target == ErrValidation
}
