package error

import "errors"

var (
	ErrDuplicateBreakpoint = errors.New("a breakpoint at this position already is set")
	ErrOutOfRange          = errors.New("index out of range")
	ErrInvalidState        = errors.New("command not valid in the current run state")
	ErrNoSuchThread        = errors.New("no such thread")
	ErrNoFrame             = errors.New("no stack frame found")
	ErrBackendUnavailable  = errors.New("debug backend unavailable")
	ErrProtocolViolation   = errors.New("debug backend protocol violation")
	ErrStepPending         = errors.New("a step request is already pending on this thread")
	ErrUnsupportedStep     = errors.New("step kind not supported")
	ErrNoLocation          = errors.New("no code at this line")
	ErrDebuggerIsClosed    = errors.New("debug is closed")
	ErrRequestTimeout      = errors.New("debug backend request timeout")
)
