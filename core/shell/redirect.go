package shell

import "fmt"

// Stream identifies which output of a stage is redirected.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("Stream(%d)", int(s))
	}
}

// Mode controls how a redirection target is opened.
type Mode int

const (
	Truncate Mode = iota
	Append
)

func (m Mode) String() string {
	switch m {
	case Truncate:
		return "truncate"
	case Append:
		return "append"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Redirection sends one of a stage's output streams to a file.
type Redirection struct {
	Stream Stream
	Mode   Mode
	// Target is the path exactly as written after the operator.
	Target string
}

func (r *Redirection) String() string {
	op := ">"
	if r.Mode == Append {
		op = ">>"
	}
	if r.Stream == Stderr {
		op = "2" + op
	}
	return op + " " + r.Target
}

var redirectionOperators = map[string]Redirection{
	">":   {Stream: Stdout, Mode: Truncate},
	"1>":  {Stream: Stdout, Mode: Truncate},
	">>":  {Stream: Stdout, Mode: Append},
	"1>>": {Stream: Stdout, Mode: Append},
	"2>":  {Stream: Stderr, Mode: Truncate},
	"2>>": {Stream: Stderr, Mode: Append},
}

// IsRedirectionOperator reports whether tok is one of the six recognized
// redirection operators.
func IsRedirectionOperator(tok string) bool {
	_, ok := redirectionOperators[tok]
	return ok
}

// ResolveRedirection looks for an `operator path` pair in the last two tokens
// of the stage. If one is found it's removed from the returned stage.
//
// Operators anywhere else in the stage are ordinary arguments, so
// `echo > a b` passes ">" "a" "b" to echo. The returned stage has an empty
// Name if the stage was nothing but a redirection.
func ResolveRedirection(stage Stage) (Stage, *Redirection) {
	tokens := stage.Tokens()
	if len(tokens) < 2 {
		return stage, nil
	}

	op, ok := redirectionOperators[tokens[len(tokens)-2]]
	if !ok {
		return stage, nil
	}

	redirect := op
	redirect.Target = tokens[len(tokens)-1]

	clean := make([]string, len(tokens)-2)
	copy(clean, tokens)
	return newStage(clean), &redirect
}
