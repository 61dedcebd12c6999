// Package commands holds the shell builtins and the registry they're looked up
// in.
package commands

import (
	"github.com/josephlewis42/pipesh/core/vos"
)

// Session is the shell state a builtin may inspect or change.
type Session interface {
	// Getwd returns the session's working directory.
	Getwd() string
	// Chdir changes the session's working directory.
	Chdir(dir string) error
	Getenv(key string) string
	// LookPath resolves an executable on the session's search path.
	LookPath(name string) (string, error)
	// History returns the lines entered so far, oldest first.
	History() []string
	ClearHistory()
	// LastStatus is the exit status of the previous pipeline.
	LastStatus() int
	// Exit asks the shell to stop once the current pipeline finishes.
	Exit(code int)
	// LogInvalidInvocation records that a builtin was called incorrectly.
	LogInvalidInvocation(args []string, err error)
	// Builtins is the registry the session resolves builtins from.
	Builtins() *Registry
}

// Invocation is a single call of a builtin. Args[0] is the name the builtin
// was invoked with.
type Invocation struct {
	vos.VIO

	Args    []string
	Session Session
}

// Builtin is a command that runs inside the shell process. It must only use
// the streams on the Invocation, never the process's own.
type Builtin interface {
	Main(inv *Invocation) int
}

type BuiltinFunc func(inv *Invocation) int

func (f BuiltinFunc) Main(inv *Invocation) int {
	return f(inv)
}

var _ Builtin = (BuiltinFunc)(nil)
