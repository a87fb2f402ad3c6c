package types

import "errors"

// Domain errors for type validation
var (
	ErrMissingURL   = errors.New("url is required")
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrInvalidKind  = errors.New("invalid content kind")
)
