package shell

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRedirection(t *testing.T) {
	cases := map[string]struct {
		stage         Stage
		expectedStage Stage
		expected      *Redirection
	}{
		"stdout truncate": {
			stage:         Stage{Name: "ls", Args: []string{"-l", ">", "out.txt"}},
			expectedStage: Stage{Name: "ls", Args: []string{"-l"}},
			expected:      &Redirection{Stream: Stdout, Mode: Truncate, Target: "out.txt"},
		},
		"explicit stdout truncate": {
			stage:         Stage{Name: "ls", Args: []string{"1>", "out.txt"}},
			expectedStage: Stage{Name: "ls"},
			expected:      &Redirection{Stream: Stdout, Mode: Truncate, Target: "out.txt"},
		},
		"stdout append": {
			stage:         Stage{Name: "echo", Args: []string{"hi", ">>", "log"}},
			expectedStage: Stage{Name: "echo", Args: []string{"hi"}},
			expected:      &Redirection{Stream: Stdout, Mode: Append, Target: "log"},
		},
		"explicit stdout append": {
			stage:         Stage{Name: "echo", Args: []string{"hi", "1>>", "log"}},
			expectedStage: Stage{Name: "echo", Args: []string{"hi"}},
			expected:      &Redirection{Stream: Stdout, Mode: Append, Target: "log"},
		},
		"stderr truncate": {
			stage:         Stage{Name: "cat", Args: []string{"missing", "2>", "err.txt"}},
			expectedStage: Stage{Name: "cat", Args: []string{"missing"}},
			expected:      &Redirection{Stream: Stderr, Mode: Truncate, Target: "err.txt"},
		},
		"stderr append": {
			stage:         Stage{Name: "cat", Args: []string{"missing", "2>>", "err.txt"}},
			expectedStage: Stage{Name: "cat", Args: []string{"missing"}},
			expected:      &Redirection{Stream: Stderr, Mode: Append, Target: "err.txt"},
		},
		"target kept verbatim": {
			stage:         Stage{Name: "echo", Args: []string{">", "my file.txt"}},
			expectedStage: Stage{Name: "echo"},
			expected:      &Redirection{Stream: Stdout, Mode: Truncate, Target: "my file.txt"},
		},
		"no redirection": {
			stage:         Stage{Name: "ls", Args: []string{"-l"}},
			expectedStage: Stage{Name: "ls", Args: []string{"-l"}},
			expected:      nil,
		},
		"operator not second to last": {
			stage:         Stage{Name: "echo", Args: []string{">", "a", "b"}},
			expectedStage: Stage{Name: "echo", Args: []string{">", "a", "b"}},
			expected:      nil,
		},
		"trailing operator without target": {
			stage:         Stage{Name: "echo", Args: []string{"hi", ">"}},
			expectedStage: Stage{Name: "echo", Args: []string{"hi", ">"}},
			expected:      nil,
		},
		"unknown operator": {
			stage:         Stage{Name: "echo", Args: []string{"hi", "3>", "x"}},
			expectedStage: Stage{Name: "echo", Args: []string{"hi", "3>", "x"}},
			expected:      nil,
		},
		"only one redirection is recognized": {
			stage:         Stage{Name: "cmd", Args: []string{">", "a", "2>", "b"}},
			expectedStage: Stage{Name: "cmd", Args: []string{">", "a"}},
			expected:      &Redirection{Stream: Stderr, Mode: Truncate, Target: "b"},
		},
		"name is the operator": {
			stage:         Stage{Name: ">", Args: []string{"out.txt"}},
			expectedStage: Stage{},
			expected:      &Redirection{Stream: Stdout, Mode: Truncate, Target: "out.txt"},
		},
		"single token": {
			stage:         Stage{Name: ">"},
			expectedStage: Stage{Name: ">"},
			expected:      nil,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			actualStage, actual := ResolveRedirection(tc.stage)
			assert.Equal(t, tc.expectedStage, actualStage)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestResolveRedirection_doesNotModifyInput(t *testing.T) {
	stage := Stage{Name: "ls", Args: []string{"-l", ">", "out.txt"}}
	ResolveRedirection(stage)
	assert.Equal(t, []string{"-l", ">", "out.txt"}, stage.Args)
}

func TestRedirection_String(t *testing.T) {
	for op := range redirectionOperators {
		stage, redirect := ResolveRedirection(Stage{Name: "x", Args: []string{op, "f"}})
		assert.Equal(t, Stage{Name: "x"}, stage)
		assert.NotNil(t, redirect)
		assert.True(t, IsRedirectionOperator(op))
	}

	r := &Redirection{Stream: Stderr, Mode: Append, Target: "err.log"}
	assert.Equal(t, "2>> err.log", r.String())
	assert.Equal(t, "stderr", r.Stream.String())
	assert.Equal(t, "append", r.Mode.String())
	assert.False(t, IsRedirectionOperator("|"))
}
