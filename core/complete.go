package core

import (
	"sort"
	"strings"
)

// completer completes the command name of the stage under the cursor with
// builtins and executables on the search path. Arguments aren't completed.
type completer struct {
	shell *Shell
}

func (c *completer) Do(line []rune, pos int) (newLine [][]rune, length int) {
	prefix, ok := commandPrefix(string(line[:pos]))
	if !ok {
		return nil, 0
	}

	for _, name := range c.shell.Candidates(prefix) {
		newLine = append(newLine, []rune(strings.TrimPrefix(name, prefix)+" "))
	}
	return newLine, len([]rune(prefix))
}

// commandPrefix returns the partial command name at the end of the line. ok is
// false if the cursor is past the command name of its stage.
func commandPrefix(line string) (prefix string, ok bool) {
	if i := strings.LastIndexByte(line, '|'); i >= 0 {
		line = line[i+1:]
	}
	line = strings.TrimLeft(line, " \t")
	if strings.ContainsAny(line, " \t'\"\\") {
		return "", false
	}
	return line, true
}

// Candidates returns the sorted, unique builtin and executable names
// starting with prefix.
func (s *Shell) Candidates(prefix string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, name := range s.registry.ListNames() {
		if strings.HasPrefix(name, prefix) {
			add(name)
		}
	}
	if !strings.Contains(prefix, "/") {
		for _, name := range s.resolver.CandidatesByPrefix(prefix) {
			add(name)
		}
	}

	sort.Strings(out)
	return out
}
