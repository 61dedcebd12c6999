// Package pipeline runs a parsed and resolved pipeline to completion.
//
// Stages are grouped into segments: a maximal run of external stages is
// connected with OS pipes and runs concurrently, a builtin runs on the
// caller's goroutine with its input and output held in memory.
package pipeline

import (
	"fmt"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/core/shell"
)

// Kind says how a stage is executed.
type Kind int

const (
	Builtin Kind = iota
	External
)

func (k Kind) String() string {
	switch k {
	case Builtin:
		return "builtin"
	case External:
		return "external"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ResolvedStage is a stage that is ready to run. Its Stage has any
// redirection tokens removed.
type ResolvedStage struct {
	shell.Stage

	Redirect *shell.Redirection
	Kind     Kind

	// Handler is set for builtins.
	Handler commands.Builtin
	// Path is the executable for external stages.
	Path string
}

// NewBuiltinStage creates a stage run in-process by handler.
func NewBuiltinStage(stage shell.Stage, redirect *shell.Redirection, handler commands.Builtin) *ResolvedStage {
	return &ResolvedStage{
		Stage:    stage,
		Redirect: redirect,
		Kind:     Builtin,
		Handler:  handler,
	}
}

// NewExternalStage creates a stage run as a child process of path.
func NewExternalStage(stage shell.Stage, redirect *shell.Redirection, path string) *ResolvedStage {
	return &ResolvedStage{
		Stage:    stage,
		Redirect: redirect,
		Kind:     External,
		Path:     path,
	}
}
