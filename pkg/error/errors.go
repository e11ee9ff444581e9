package error

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

type ServiceError int

const (
	ErrNotFound ServiceError = iota + 1
	ErrConflict
	ErrStaleVersion
	ErrInvalidState
	ErrInvalidAmount
	ErrTransientDependency
	ErrDatabaseError
	ErrRepositoryError
	ErrPublishError
	ErrInternalError
)

func (e ServiceError) Error() string {
	switch e {
	case ErrNotFound:
		return "Not Found"
	case ErrConflict:
		return "Conflict"
	case ErrStaleVersion:
		return "Stale Version"
	case ErrInvalidState:
		return "Invalid State"
	case ErrInvalidAmount:
		return "Invalid Amount"
	case ErrTransientDependency:
		return "Transient Dependency Failure"
	case ErrDatabaseError:
		return "Database Error"
	case ErrRepositoryError:
		return "Repository Error"
	case ErrPublishError:
		return "Publish Error"
	case ErrInternalError:
		return "Internal Error"
	default:
		return "Unknown Service Error"
	}
}

// Terminal reports whether the code rejects the request outright: retrying
// the same call or redelivering the same message cannot change the outcome.
// ErrStaleVersion is deliberately not terminal: a lost optimistic-lock race
// succeeds on retry against the re-read version.
func (e ServiceError) Terminal() bool {
	switch e {
	case ErrNotFound, ErrConflict, ErrInvalidState, ErrInvalidAmount:
		return true
	}
	return false
}

type ErrorDetails struct {
	Code      ServiceError
	Msg       string
	Op        string
	Cause     error
	OccuredAt time.Time
	Trace     []string
}

func (e *ErrorDetails) Error() string {
	base := e.Code.Error()
	if e.Msg != "" {
		base = base + ": " + e.Msg
	}
	if e.Op != "" {
		base = e.Op + ": " + base
	}
	return base
}

func (e *ErrorDetails) TraceString() string {
	if len(e.Trace) == 0 {
		if e.Op != "" {
			return e.Op
		}
		return ""
	}

	return strings.Join(e.Trace, ": ")
}

func (e *ErrorDetails) Is(target error) bool {
	if code, ok := target.(ServiceError); ok {
		return e.Code == code
	}

	return errors.Is(e.Cause, target)
}

func (e *ErrorDetails) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			fmt.Fprintf(s, "%s\n", e.Error())
			if ts := e.TraceString(); ts != "" {
				fmt.Fprintf(s, "trace: %s\n", ts)
			}
			if e.Cause != nil {
				fmt.Fprintf(s, "cause: %+v\n", e.Cause)
			}
			return
		}
		fallthrough
	case 's':
		io.WriteString(s, e.Error())
	case 'q':
		fmt.Fprintf(s, "%q", e.Error())
	}
}

func (e *ErrorDetails) Unwrap() error {
	return e.Cause
}

func New(code ServiceError, opts ...func(*ErrorDetails)) *ErrorDetails {
	err := &ErrorDetails{Code: code}
	for _, opt := range opts {
		opt(err)
	}
	return err
}

func Newf(code ServiceError, format string, args ...any) *ErrorDetails {
	return New(code, WithMsg(fmt.Sprintf(format, args...)))
}

func WithMsg(msg string) func(*ErrorDetails) {
	return func(ed *ErrorDetails) { ed.Msg = msg }
}

func WithOp(op string) func(*ErrorDetails) {
	return func(ed *ErrorDetails) {
		ed.Op = op
		ed.Trace = append(ed.Trace, op)
	}
}

func WithCause(err error) func(*ErrorDetails) {
	return func(ed *ErrorDetails) { ed.Cause = err }
}

func WithTime(t time.Time) func(*ErrorDetails) {
	return func(ed *ErrorDetails) { ed.OccuredAt = t }
}

func AddOp(err error, op string) error {
	if err == nil {
		return nil
	}

	var ed *ErrorDetails
	if errors.As(err, &ed) {
		ed.Op = op
		ed.Trace = append(ed.Trace, op)
		return ed
	}

	return fmt.Errorf("%s: %w", op, err)
}

// IsTerminal reports whether err carries a terminal service-error code.
func IsTerminal(err error) bool {
	var ed *ErrorDetails
	if errors.As(err, &ed) {
		return ed.Code.Terminal()
	}
	var code ServiceError
	if errors.As(err, &code) {
		return code.Terminal()
	}
	return false
}
