// Package utils holds small helpers for the optional columns and partial updates
// the stores pass around as pointers.
package utils

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

// NilIfZero maps the zero value to nil so it is stored as NULL.
func NilIfZero[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}
