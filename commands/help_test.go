package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelp(t *testing.T) {
	cases := goldenTestSuite{
		"default": {[]string{"help"}},
		"never":   {[]string{"help", "--color=never"}},
	}

	cases.Run(t, Help)
}

func TestHelp_sessionRegistry(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register("help", BuiltinFunc(Help)))
	require.NoError(t, registry.Register("greet", BuiltinFunc(Echo)))

	session := newFakeSession()
	session.builtins = registry

	out, status := runBuiltin(BuiltinFunc(Help), session, "help", "--color=never")
	assert.Equal(t, 0, status)
	assert.Contains(t, out, "Builtins:\n  greet\n  help\n")
	assert.NotContains(t, out, "  cd\n")
}
