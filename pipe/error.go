package pipe

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidState is returned if stage method cannot be executed at
	// this moment.
	ErrInvalidState = errors.New("invalid state")
	// ErrClosed is returned when item is put into closed channel.
	ErrClosed = errors.New("channel closed")
	// ErrStopTimeout is returned when stage worker did not exit in time.
	ErrStopTimeout = errors.New("stop timeout")
)

// ErrorStage is returned if stage worker failed. It wraps the processor
// error and, if set, the error of stop hook.
type ErrorStage struct {
	Stage   string
	ErrExec error
	ErrStop error
}

func (e *ErrorStage) Error() string {
	switch {
	case e.ErrExec != nil && e.ErrStop != nil:
		return fmt.Sprintf("%s: stop error: %v after execute error: %v", e.Stage, e.ErrStop, e.ErrExec)
	case e.ErrExec != nil:
		return fmt.Sprintf("%s: execute error: %v", e.Stage, e.ErrExec)
	case e.ErrStop != nil:
		return fmt.Sprintf("%s: stop error: %v", e.Stage, e.ErrStop)
	}
	return e.Stage
}

// Is checks if any of errors match provided sentinel error.
func (e *ErrorStage) Is(err error) bool {
	if e.ErrExec != nil && errors.Is(e.ErrExec, err) {
		return true
	}
	if e.ErrStop != nil && errors.Is(e.ErrStop, err) {
		return true
	}
	return false
}

// stopErrors wraps errors that might occur when multiple stages are
// failing to stop.
type stopErrors []error

func (e stopErrors) Error() string {
	s := make([]string, 0, len(e))
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ", ")
}

func (e stopErrors) Unwrap() []error {
	return e
}

// ret returns untyped nil if error list is empty.
func (e stopErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
