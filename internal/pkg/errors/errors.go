package errors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalid             = errors.New("invalid")
	ErrTimeout             = errors.New("timeout")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSchemaMismatch      = errors.New("schema mismatch")
	ErrDimensionMismatch   = errors.New("dimension mismatch")
	ErrUnavailable         = errors.New("provider unavailable")
)

func IsFatal(err error) bool {
	return errors.Is(err, ErrSchemaMismatch) || errors.Is(err, ErrDimensionMismatch)
}

func IsTransient(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTimeout)
}
