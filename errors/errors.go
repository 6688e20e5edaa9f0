package errors

import (
	"errors"
	"fmt"
)

// Collection is a thread-unsafe utility for accumulating multiple errors.
// It is used where every problem should be reported at once, such as when
// validating a declaration, instead of stopping at the first one.
type Collection struct {
	errors []error
}

// Add appends an error to the collection. Nil errors are ignored.
func (c *Collection) Add(err error) {
	if err != nil {
		c.errors = append(c.errors, err)
	}
}

// Addf appends a formatted error. The format follows fmt.Errorf, so %w wraps.
func (c *Collection) Addf(format string, args ...any) {
	c.errors = append(c.errors, fmt.Errorf(format, args...)) //nolint:err113
}

// Clear removes all errors from the collection.
func (c *Collection) Clear() {
	c.errors = nil
}

// HasError returns true if the collection contains at least one error.
func (c *Collection) HasError() bool {
	return len(c.errors) > 0
}

// Len returns the number of collected errors.
func (c *Collection) Len() int {
	return len(c.errors)
}

// Errors returns a copy of the collected errors.
func (c *Collection) Errors() []error {
	out := make([]error, len(c.errors))
	copy(out, c.errors)

	return out
}

// GetError returns the collected errors as a single error.
// Returns nil if the collection is empty, the single error if there's only one,
// or a joined error (using errors.Join) if there are multiple errors.
func (c *Collection) GetError() error {
	switch len(c.errors) {
	case 0:
		return nil
	case 1:
		return c.errors[0]
	default:
		return errors.Join(c.errors...)
	}
}

// GetErrorWrapped is GetError with every error also matching base under errors.Is.
// Returns nil if the collection is empty.
func (c *Collection) GetErrorWrapped(base error) error {
	err := c.GetError()
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", base, err)
}
