package audio

import (
	"errors"
	"fmt"
)

// ErrEmptyPayload is returned when an upstream generation call produced a
// zero-length PCM payload. A zero-length WAV is technically valid, but an
// empty payload here always means the generation itself failed, so it is
// treated as an input error rather than silently producing a 44-byte file.
var ErrEmptyPayload = errors.New("audio: empty PCM payload")

// DecodeError indicates deterministically bad input to a codec function:
// malformed Base64 text or a PCM byte sequence that does not divide evenly
// into samples. Retrying a DecodeError is never useful.
type DecodeError struct {
	// Op identifies the codec step that failed ("base64", "pcm16").
	Op string

	// Reason is a human-readable description of what was wrong with the input.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("audio: decode %s: %s", e.Op, e.Reason)
}

// Unwrap returns the underlying error for use with [errors.Is] and [errors.As].
func (e *DecodeError) Unwrap() error { return e.Err }
