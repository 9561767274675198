package lorae5

import "fmt"

// ErrorKind classifies the failures the driver can surface to a caller.
// The arbiter and client never retry any of these except the explicit
// OTAA join loop, which retries on its own terms.
type ErrorKind int

const (
	// ErrTimeout means a transport write or a response wait exceeded its
	// configured budget.
	ErrTimeout ErrorKind = iota
	// ErrParse means a response or URC body did not match the expected
	// grammar for the command or event in question.
	ErrParse
	// ErrCustomCode means the modem replied with an error: "ERROR(-n)"
	// (Code is n), or a bare or unrecognised ERROR body (Code is 0).
	ErrCustomCode
	// ErrCapacityExceeded means a bounded container could not accept the
	// value it was asked to hold.
	ErrCapacityExceeded
	// ErrInvalidArgument means the caller violated a documented range
	// (port 0, payload too long, data rate out of range, ...).
	ErrInvalidArgument
	// ErrUnavailable means the arbiter produced neither a response slot
	// nor a matching URC before its wait was cancelled.
	ErrUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrTimeout:
		return "timeout"
	case ErrParse:
		return "parse"
	case ErrCustomCode:
		return "custom code"
	case ErrCapacityExceeded:
		return "capacity exceeded"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is the single error type every driver operation returns. Callers
// switch on Kind; Code and Detail carry kind-specific context.
type Error struct {
	Kind   ErrorKind
	Code   int    // populated for ErrCustomCode: the modem's ERROR(-n)
	Detail string // human-readable context, e.g. the offending slice
}

func (e *Error) Error() string {
	if e.Kind == ErrCustomCode {
		return fmt.Sprintf("lorae5: modem error %d: %s", e.Code, e.Detail)
	}
	if e.Detail == "" {
		return fmt.Sprintf("lorae5: %s", e.Kind)
	}
	return fmt.Sprintf("lorae5: %s: %s", e.Kind, e.Detail)
}

func errTimeout(detail string) error { return &Error{Kind: ErrTimeout, Detail: detail} }

func errParse(detail string) error { return &Error{Kind: ErrParse, Detail: detail} }

func errCapacity(detail string) error { return &Error{Kind: ErrCapacityExceeded, Detail: detail} }

func errInvalidArgument(detail string) error {
	return &Error{Kind: ErrInvalidArgument, Detail: detail}
}

func errCustomCode(code int, detail string) error {
	return &Error{Kind: ErrCustomCode, Code: code, Detail: detail}
}

func errUnavailable(detail string) error { return &Error{Kind: ErrUnavailable, Detail: detail} }
