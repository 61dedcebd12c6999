package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordAll(t *testing.T, events ...Event) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	session := NewJsonLinesLogRecorder(&buf).NewSession()
	for _, event := range events {
		require.NoError(t, session.Record(event))
	}
	return &buf
}

func TestReport(t *testing.T) {
	buf := recordAll(t,
		&SessionStart{Mode: "ssh", User: "bob"},
		&Login{Username: "bob", Fingerprint: "SHA256:abc", Accepted: true},
		&RunCommand{Line: "ls | wc", Stage: 0, Command: []string{"ls"}, Kind: "external", ResolvedPath: "/bin/ls"},
		&RunCommand{Line: "ls | wc", Stage: 1, Command: []string{"wc"}, Kind: "external", ResolvedPath: "/usr/bin/wc"},
		&RunCommand{Line: "cd /", Stage: 0, Command: []string{"cd", "/"}, Kind: "builtin", Status: 1},
		&UnknownCommand{Line: "nope", Command: []string{"nope"}, Status: 127, Error: "nope: command not found"},
		&SyntaxError{Line: "|", Message: "empty command before '|'"},
		&Panic{Context: "boom"},
	)

	var report Report
	interactions := &InteractionReport{}
	bugs := NewBugReport()
	require.NoError(t, ReadJSONLinesLog(buf, func(le *LogEntry) {
		report.Update(le)
		interactions.Update(le)
		bugs.Update(le)
	}))

	assert.Equal(t, 8, report.LogEntries)
	assert.Equal(t, 1, report.Sessions)
	assert.Equal(t, 2, report.RunCommand.Pipelines)
	assert.Equal(t, 2, report.RunCommand.Kinds.Get("external"))
	assert.Equal(t, 1, report.RunCommand.Statuses.Get("1"))
	assert.Equal(t, 1, report.RunCommand.CommandNames.Get("cd"))
	assert.Equal(t, 1, report.UnknownCommand.CommandNames.Get("nope"))
	assert.Equal(t, 1, report.SyntaxError.Messages.Get("empty command before '|'"))
	assert.Equal(t, 1, report.Login.Results.Get("accepted"))
	assert.Equal(t, []string{"boom"}, report.Panic.Contexts)

	require.Len(t, interactions.interactions, 1)
	for _, session := range interactions.interactions {
		assert.Equal(t, "ssh", session.Mode)
		assert.Equal(t, "bob", session.Login.Username)
		assert.Equal(t, []string{"ls | wc", "cd /", "nope"}, session.Commands)
		assert.Equal(t, []string{"|"}, session.SyntaxErrors)
	}

	assert.Equal(t, []string{"boom"}, bugs.Panics)
	_, err := json.Marshal(bugs)
	assert.NoError(t, err)
}

func TestReport_unknownEvent(t *testing.T) {
	var report Report
	report.Update(&LogEntry{EventType: "mystery"})
	assert.Equal(t, 1, report.InvalidEntries.Get("mystery"))
}

func TestPathCounter(t *testing.T) {
	ctr := NewPathCounter("command", "error")
	ctr.Increment("ls", "bad flag")
	ctr.Increment("cd", "too many args")
	ctr.Increment("cd", "too many args")

	out, err := json.Marshal(ctr)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"count": 2, "event": {"command": "cd", "error": "too many args"}},
		{"count": 1, "event": {"command": "ls", "error": "bad flag"}}
	]`, string(out))

	assert.Panics(t, func() { ctr.Increment("one") })

	empty, err := json.Marshal(NewPathCounter("a"))
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
