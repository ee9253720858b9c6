package codec

import (
	"errors"
	"fmt"
)

// Decode and encode failures caused by the data itself. Callers can test
// for them with errors.Is; messages carry the offending offset or value.
var (
	ErrShortBuffer    = errors.New("buffer too short")
	ErrMalformed      = errors.New("malformed data")
	ErrNotImplemented = errors.New("not implemented")
	ErrInvalidValue   = errors.New("invalid value")
)

// assertf reports a descriptor or encoder bug. These never come from wire
// data, so they panic instead of returning an error.
func assertf(format string, args ...any) {
	panic(fmt.Sprintf("codec: "+format, args...))
}

func shortf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrShortBuffer}, args...)...)
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrMalformed}, args...)...)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidValue}, args...)...)
}
