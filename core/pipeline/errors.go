package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/josephlewis42/pipesh/core/vos"
)

const (
	// StatusNotFound is the exit status of a command that couldn't be found.
	StatusNotFound = 127
	// StatusNotExecutable is the exit status of a command that couldn't be run.
	StatusNotExecutable = 126
	// StatusNotStarted marks a stage that never ran.
	StatusNotStarted = -1
)

// ResolutionError is reported for a stage whose name is neither a builtin
// nor an executable on the search path.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: command not found", e.Name)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// LaunchError is reported when an external stage fails to start.
type LaunchError struct {
	Stage int
	Name  string
	Path  string
	Err   error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, vos.DescribeError(e.Err))
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitStatus follows the shell convention of 126 for commands found but not
// executable and 127 for everything else.
func (e *LaunchError) ExitStatus() int {
	if errors.Is(e.Err, fs.ErrPermission) {
		return StatusNotExecutable
	}
	return StatusNotFound
}

// RedirectionIOError is reported when a redirection target can't be opened
// or written.
type RedirectionIOError struct {
	Stage    int
	Redirect *shell.Redirection
	Err      error
}

func (e *RedirectionIOError) Error() string {
	return fmt.Sprintf("%s: %s", e.Redirect.Target, vos.DescribeError(e.Err))
}

func (e *RedirectionIOError) Unwrap() error {
	return e.Err
}

// PanicError is reported when a builtin panics.
type PanicError struct {
	Stage int
	Name  string
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s: internal error: %v", e.Name, e.Value)
}
