package search

import "fmt"

// InvalidQueryError reports a request with no usable query input.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid query: %s", e.Reason)
}

// NewInvalidQueryError creates an InvalidQueryError.
func NewInvalidQueryError(reason string) *InvalidQueryError {
	return &InvalidQueryError{Reason: reason}
}

// DimensionMismatchError reports a query vector whose dimension does
// not match the collection.
type DimensionMismatchError struct {
	Collection string
	Expected   int
	Actual     int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("query vector dimension %d does not match collection %s dimension %d",
		e.Actual, e.Collection, e.Expected)
}
