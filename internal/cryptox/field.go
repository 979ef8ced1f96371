package cryptox

// Field is the result of decrypting one encrypted attribute: either a value
// of type T or undecryptable. The two cases cannot be confused with a zero
// value; callers check Get's second result.
type Field[T any] struct {
	v  T
	ok bool
}

// Value wraps a successfully decrypted v.
func Value[T any](v T) Field[T] {
	return Field[T]{v: v, ok: true}
}

// Undecryptable returns the failure variant.
func Undecryptable[T any]() Field[T] {
	return Field[T]{}
}

// Get returns the decrypted value and true, or the zero value and false.
func (f Field[T]) Get() (T, bool) {
	return f.v, f.ok
}

func (f Field[T]) Undecryptable() bool {
	return !f.ok
}

// Or returns the decrypted value, or fallback when undecryptable.
func (f Field[T]) Or(fallback T) T {
	if !f.ok {
		return fallback
	}
	return f.v
}
