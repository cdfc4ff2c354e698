package errcode

const (
	ErrInvalid     = 40001
	ErrNotFound    = 40401
	ErrTooMany     = 42901
	ErrInternal    = 50001
	ErrUnavailable = 50301
)
