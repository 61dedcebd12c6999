package vos

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *PathResolver {
	t.Helper()

	memFs := afero.NewMemMapFs()
	files := map[string]fs.FileMode{
		"/bin/ls":             0755,
		"/bin/cat":            0755,
		"/bin/readme.txt":     0644,
		"/usr/bin/ls":         0755,
		"/usr/bin/less":       0755,
		"/usr/bin/lesspipe":   0700,
		"/home/user/run.sh":   0755,
		"/home/user/notes.md": 0600,
	}
	for name, mode := range files {
		require.NoError(t, afero.WriteFile(memFs, name, []byte("#!/bin/sh\n"), mode))
	}
	require.NoError(t, memFs.MkdirAll("/usr/bin/lsdir", 0755))

	env := NewMapEnvFromEnvList([]string{"PATH=/bin:/usr/bin:/missing"})
	return &PathResolver{
		Fs:  memFs,
		Env: env,
		Dir: func() string { return "/home/user" },
	}
}

func TestPathResolver_Resolve(t *testing.T) {
	resolver := newTestResolver(t)

	cases := map[string]struct {
		name     string
		expected string
		err      error
	}{
		"first match on path wins": {name: "ls", expected: "/bin/ls"},
		"later path entry":         {name: "less", expected: "/usr/bin/less"},
		"not executable":           {name: "readme.txt", err: ErrNotFound},
		"directory":                {name: "lsdir", err: ErrNotFound},
		"missing":                  {name: "nope", err: ErrNotFound},
		"empty":                    {name: "", err: ErrNotFound},
		"absolute path":            {name: "/usr/bin/ls", expected: "/usr/bin/ls"},
		"relative path":            {name: "./run.sh", expected: "/home/user/run.sh"},
		"relative not executable":  {name: "./notes.md", err: fs.ErrPermission},
		"relative missing":         {name: "./gone", err: fs.ErrNotExist},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			actual, err := resolver.Resolve(tc.name)
			if tc.err != nil {
				assert.True(t, errors.Is(err, tc.err), "expected %v got %v", tc.err, err)
				assert.Empty(t, actual)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestPathResolver_relativePathEntry(t *testing.T) {
	resolver := newTestResolver(t)
	resolver.Env = NewMapEnvFromEnvList([]string{"PATH=:/bin"})

	actual, err := resolver.Resolve("run.sh")
	assert.NoError(t, err)
	assert.Equal(t, "/home/user/run.sh", actual)
}

func TestPathResolver_CandidatesByPrefix(t *testing.T) {
	resolver := newTestResolver(t)

	assert.Equal(t, []string{"less", "lesspipe", "ls"}, resolver.CandidatesByPrefix("l"))
	assert.Equal(t, []string{"less", "lesspipe"}, resolver.CandidatesByPrefix("les"))
	assert.Equal(t, []string{"cat", "less", "lesspipe", "ls"}, resolver.CandidatesByPrefix(""))
	assert.Empty(t, resolver.CandidatesByPrefix("zzz"))
}
