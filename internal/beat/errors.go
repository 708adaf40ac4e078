package beat

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidInput is returned when a frame cannot be reduced to an energy value.
	ErrInvalidInput = eris.New("invalid frequency frame")
	// ErrEmptyHistory is returned when a mean is requested before any value was pushed.
	ErrEmptyHistory = eris.New("energy history is empty")
	// ErrCaptureUnavailable is returned when the frame source cannot supply a frame.
	ErrCaptureUnavailable = eris.New("audio capture unavailable")
)

// sourceError marks a frame source failure as ErrCaptureUnavailable while
// keeping the source's own error reachable through Unwrap.
type sourceError struct {
	cause error
}

func (e *sourceError) Error() string {
	return fmt.Sprintf("read frame: %s: %s", ErrCaptureUnavailable.Error(), e.cause.Error())
}

func (e *sourceError) Is(target error) bool {
	return eris.Is(ErrCaptureUnavailable, target)
}

func (e *sourceError) Unwrap() error {
	return e.cause
}
