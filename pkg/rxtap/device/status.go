package device

import "fmt"

// Status is a negative return code from a driver stream call.
type Status int

const (
	StatusTimeout      Status = -1
	StatusStreamError  Status = -2
	StatusCorruption   Status = -3
	StatusOverflow     Status = -4
	StatusNotSupported Status = -5
	StatusTimeError    Status = -6
	StatusUnderflow    Status = -7
)

func (s Status) String() string {
	switch s {
	case StatusTimeout:
		return "TIMEOUT"
	case StatusStreamError:
		return "STREAM_ERROR"
	case StatusCorruption:
		return "CORRUPTION"
	case StatusOverflow:
		return "OVERFLOW"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	case StatusTimeError:
		return "TIME_ERROR"
	case StatusUnderflow:
		return "UNDERFLOW"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

type StatusError struct {
	Status Status
}

func NewStatusError(code int) *StatusError {
	return &StatusError{Status: Status(code)}
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream status %d (%s)", int(e.Status), e.Status)
}
