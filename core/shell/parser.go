// Package shell turns a line of input into pipeline stages.
//
// The grammar is deliberately small: whitespace separated words, single and
// double quotes, backslash escapes, the pipe operator and a single trailing
// redirection per stage. There is no globbing, variable expansion, subshells,
// job control or here-documents.
package shell

import (
	"fmt"
	"strings"
)

// Stage is a single command of a pipeline.
type Stage struct {
	Name string
	Args []string
}

// Tokens returns the name followed by the arguments.
func (s Stage) Tokens() []string {
	if s.Name == "" && len(s.Args) == 0 {
		return nil
	}
	return append([]string{s.Name}, s.Args...)
}

// String re-joins the stage's tokens with single spaces.
func (s Stage) String() string {
	return strings.Join(s.Tokens(), " ")
}

func newStage(tokens []string) Stage {
	if len(tokens) == 0 {
		return Stage{}
	}
	stage := Stage{Name: tokens[0]}
	if len(tokens) > 1 {
		stage.Args = tokens[1:]
	}
	return stage
}

// SyntaxError is returned when a line can't be turned into a pipeline.
type SyntaxError struct {
	// Offset is the byte offset in the line where the problem was detected.
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error: %s", e.Msg)
}

type lexState int

const (
	stateBare lexState = iota
	stateInSingle
	stateInDouble
	stateEscapeBare
	stateEscapeDouble
)

// Parse splits a line into pipeline stages.
//
// An empty or blank line yields no stages and no error. An empty stage, an
// unclosed quote or a trailing unquoted backslash is a *SyntaxError and no
// stages are returned.
func Parse(line string) ([]Stage, error) {
	var (
		stages  []Stage
		tokens  []string
		word    strings.Builder
		state   = stateBare
		sawPipe bool
		// Byte offset of the construct that is still open at the end of input.
		openedAt int
	)

	endWord := func() {
		if word.Len() > 0 {
			tokens = append(tokens, word.String())
			word.Reset()
		}
	}

	for offset, r := range line {
		switch state {
		case stateBare:
			switch r {
			case ' ', '\t':
				endWord()
			case '\\':
				state = stateEscapeBare
				openedAt = offset
			case '\'':
				state = stateInSingle
				openedAt = offset
			case '"':
				state = stateInDouble
				openedAt = offset
			case '|':
				endWord()
				if len(tokens) == 0 {
					return nil, &SyntaxError{Offset: offset, Msg: "empty command before '|'"}
				}
				stages = append(stages, newStage(tokens))
				tokens = nil
				sawPipe = true
			default:
				word.WriteRune(r)
			}

		case stateEscapeBare:
			word.WriteRune(r)
			state = stateBare

		case stateInSingle:
			if r == '\'' {
				state = stateBare
			} else {
				word.WriteRune(r)
			}

		case stateInDouble:
			switch r {
			case '"':
				state = stateBare
			case '\\':
				state = stateEscapeDouble
			default:
				word.WriteRune(r)
			}

		case stateEscapeDouble:
			switch r {
			case '"', '\\':
				word.WriteRune(r)
			default:
				// Only the quote and the backslash itself can be escaped.
				word.WriteByte('\\')
				word.WriteRune(r)
			}
			state = stateInDouble
		}
	}

	switch state {
	case stateInSingle:
		return nil, &SyntaxError{Offset: openedAt, Msg: "unterminated single quote"}
	case stateInDouble, stateEscapeDouble:
		return nil, &SyntaxError{Offset: openedAt, Msg: "unterminated double quote"}
	case stateEscapeBare:
		return nil, &SyntaxError{Offset: openedAt, Msg: "trailing backslash"}
	}

	endWord()
	if len(tokens) == 0 {
		if sawPipe {
			return nil, &SyntaxError{Offset: len(line), Msg: "empty command after '|'"}
		}
		return nil, nil
	}

	return append(stages, newStage(tokens)), nil
}
