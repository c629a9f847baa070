// Package ptrs is a collection of helpers for pointerizing values inline.
package ptrs

// Ptr is the "&v" you always wanted for literals.
func Ptr[T any](v T) *T {
	return &v
}
