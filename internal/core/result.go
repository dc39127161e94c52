package core

// Result is the tagged outcome of a backend call posted back to the controller loop.
type Result[T any] struct {
	Value T
	Err   *CoreError
}

// Ok wraps a successful payload.
func Ok[T any](v T) Result[T] {
	return Result[T]{Value: v}
}

// Fail wraps a failure, classifying unknown errors as network failures.
func Fail[T any](err error) Result[T] {
	return Result[T]{Err: AsCoreError(err)}
}

// From builds a Result from a conventional (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Fail[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the call succeeded.
func (r Result[T]) IsOk() bool {
	return r.Err == nil
}

// Unwrap returns the payload and a plain error.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		return r.Value, r.Err
	}
	return r.Value, nil
}
