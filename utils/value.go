package utils

// AssertType narrows from to T, returning an unexpected type error instead of panicking. Media
// libraries hand back tracks and frames as interfaces; this keeps the failure a plain error.
func AssertType[T any](from interface{}) (T, error) {
	asserted, ok := from.(T)
	if !ok {
		var zero T
		return zero, NewUnexpectedTypeError[T](from)
	}
	return asserted, nil
}
