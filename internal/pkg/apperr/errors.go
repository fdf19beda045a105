// internal/pkg/apperr/errors.go
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidation creates a ValidationError without a field reference.
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewFieldValidation creates a ValidationError tied to a specific field.
func NewFieldValidation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Resource, e.ID)
}

// NewNotFound creates a NotFoundError for the given resource and identifier.
func NewNotFound(resource string, id interface{}) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// InsufficientStockError carries the quantities involved so clients can
// self-correct without re-deriving state.
type InsufficientStockError struct {
	ProductID uint
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: available %d, requested %d",
		e.ProductID, e.Available, e.Requested)
}

// PriceMismatchError rejects stale-client submissions whose unit price no
// longer matches the catalog price.
type PriceMismatchError struct {
	ProductID uint
	Submitted decimal.Decimal
	Current   decimal.Decimal
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("price mismatch for product %d: submitted %s, current %s",
		e.ProductID, e.Submitted.String(), e.Current.String())
}

// TotalMismatchError rejects sales whose declared totals do not add up.
type TotalMismatchError struct {
	Declared decimal.Decimal
	Computed decimal.Decimal
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("total mismatch: declared %s, computed %s",
		e.Declared.String(), e.Computed.String())
}

// PersistenceError wraps a storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistence wraps err with the operation that failed.
func NewPersistence(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// HTTPStatus maps an error from the taxonomy to its response status code.
// Unknown errors are treated as internal failures.
func HTTPStatus(err error) int {
	var (
		validation *ValidationError
		notFound   *NotFoundError
		stock      *InsufficientStockError
		price      *PriceMismatchError
		total      *TotalMismatchError
	)

	switch {
	case errors.As(err, &validation),
		errors.As(err, &stock),
		errors.As(err, &price),
		errors.As(err, &total):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Details returns the structured payload for an error response. Responses
// always carry the specific quantities and prices involved.
func Details(err error) map[string]interface{} {
	var (
		stock *InsufficientStockError
		price *PriceMismatchError
		total *TotalMismatchError
	)

	switch {
	case errors.As(err, &stock):
		return map[string]interface{}{
			"product_id": stock.ProductID,
			"available":  stock.Available,
			"requested":  stock.Requested,
		}
	case errors.As(err, &price):
		return map[string]interface{}{
			"product_id":      price.ProductID,
			"submitted_price": price.Submitted,
			"current_price":   price.Current,
		}
	case errors.As(err, &total):
		return map[string]interface{}{
			"declared_total": total.Declared,
			"computed_total": total.Computed,
		}
	default:
		return nil
	}
}
