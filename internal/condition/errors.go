package condition

import "errors"

// Compile failures. Every error returned by this package wraps exactly one of these.
var (
	ErrMalformedCondition   = errors.New("malformed condition")
	ErrUnsupportedOperator  = errors.New("unsupported operator")
	ErrUnsupportedValueType = errors.New("unsupported value type")
	ErrInvalidValue         = errors.New("invalid value")
	ErrUnknownRelation      = errors.New("unknown relation")
	ErrUnknownField         = errors.New("unknown field")
)
