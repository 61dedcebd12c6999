package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/vos"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testShell struct {
	*Shell

	dir    string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	events *bytes.Buffer
}

func newTestShell(t *testing.T, stdin string) *testShell {
	t.Helper()

	ts := &testShell{
		dir:    t.TempDir(),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		events: &bytes.Buffer{},
	}

	cfg := config.Default()
	cfg.Color = config.ColorNever

	sh, err := NewShell(Options{
		Stdio:         vos.NewVIOAdapter(strings.NewReader(stdin), ts.stdout, ts.stderr),
		Configuration: cfg,
		Events:        logger.NewJsonLinesLogRecorder(ts.events).NewSession(),
		Environ: []string{
			"HOME=" + ts.dir,
			"PATH=" + os.Getenv("PATH"),
			"USER=tester",
			"HOSTNAME=box.example.com",
		},
		Dir: ts.dir,
	})
	require.NoError(t, err)
	ts.Shell = sh
	return ts
}

func (ts *testShell) reset() {
	ts.stdout.Reset()
	ts.stderr.Reset()
}

func (ts *testShell) recorded(t *testing.T) []*logger.LogEntry {
	t.Helper()

	var out []*logger.LogEntry
	require.NoError(t, logger.ReadJSONLinesLog(bytes.NewReader(ts.events.Bytes()), func(le *logger.LogEntry) {
		out = append(out, le)
	}))
	return out
}

func (ts *testShell) running() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.cancel != nil
}

func requireProgram(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not installed", name)
		}
	}
}

func TestShell_transcripts(t *testing.T) {
	cases := map[string][]string{
		"builtins": {
			`echo hello world`,
			`echo 'a  b' "c\"d" e\ f`,
			`echo -e 'x\ty'`,
			`type echo cd`,
			`echo one | echo two`,
			`exit 300`,
		},
		"errors": {
			`echo 'abc`,
			`echo ok | | echo no`,
			`echo ok |`,
			`> out.txt`,
			`pipesh-missing-a | echo hi | pipesh-missing-b`,
			`cd /pipesh/does/not/exist`,
			``,
		},
	}

	for name, lines := range cases {
		t.Run(name, func(t *testing.T) {
			ts := newTestShell(t, "")

			var transcript bytes.Buffer
			for _, line := range lines {
				ts.reset()
				status := ts.RunLine(context.Background(), line)
				fmt.Fprintf(&transcript, "$ %s\n%s%s[exit status %d]\n", line, ts.stdout, ts.stderr, status)
			}

			g := goldie.New(
				t,
				goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
				goldie.WithDiffEngine(goldie.ColoredDiff),
				goldie.WithTestNameForDir(true),
			)
			g.Assert(t, name, transcript.Bytes())
		})
	}
}

func TestShell_cd(t *testing.T) {
	ts := newTestShell(t, "")
	ctx := context.Background()
	sub := filepath.Join(ts.dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(ts.dir, "file"), nil, 0644))

	assert.Equal(t, 0, ts.RunLine(ctx, "cd sub"))
	assert.Equal(t, sub, ts.Getwd())
	assert.Equal(t, sub, ts.Getenv(EnvPWD))
	assert.Equal(t, ts.dir, ts.Getenv(EnvOldPwd))

	ts.reset()
	assert.Equal(t, 0, ts.RunLine(ctx, "pwd"))
	assert.Equal(t, sub+"\n", ts.stdout.String())

	ts.reset()
	assert.Equal(t, 0, ts.RunLine(ctx, "cd -"))
	assert.Equal(t, ts.dir+"\n", ts.stdout.String())
	assert.Equal(t, ts.dir, ts.Getwd())

	ts.reset()
	assert.Equal(t, 1, ts.RunLine(ctx, "cd file"))
	assert.Equal(t, "cd: file: Not a directory\n", ts.stderr.String())
	assert.Equal(t, ts.dir, ts.Getwd())

	assert.Equal(t, 0, ts.RunLine(ctx, "cd ~/sub"))
	assert.Equal(t, sub, ts.Getwd())
	assert.Equal(t, 0, ts.RunLine(ctx, "cd"))
	assert.Equal(t, ts.dir, ts.Getwd())
}

func TestShell_redirection(t *testing.T) {
	ts := newTestShell(t, "")
	ctx := context.Background()
	require.NoError(t, os.Mkdir(filepath.Join(ts.dir, "sub"), 0755))

	assert.Equal(t, 0, ts.RunLine(ctx, "echo one > out.txt"))
	assert.Equal(t, 0, ts.RunLine(ctx, "echo two 1>> out.txt"))
	assert.Empty(t, ts.stdout.String())

	contents, err := os.ReadFile(filepath.Join(ts.dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(contents))

	// Relative targets follow the session's directory, not the process's.
	assert.Equal(t, 0, ts.RunLine(ctx, "cd sub"))
	assert.Equal(t, 0, ts.RunLine(ctx, "echo three > out.txt"))
	contents, err = os.ReadFile(filepath.Join(ts.dir, "sub", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "three\n", string(contents))

	// A failed redirection still runs the stage.
	ts.reset()
	assert.Equal(t, 1, ts.RunLine(ctx, "echo four 2> missing/err.txt"))
	assert.Equal(t, "four\n", ts.stdout.String())
	assert.Equal(t, "pipesh: missing/err.txt: No such file or directory\n", ts.stderr.String())
}

func TestShell_allOrNothing(t *testing.T) {
	ts := newTestShell(t, "")

	status := ts.RunLine(context.Background(), "echo hi > created.txt | pipesh-missing")
	assert.Equal(t, 127, status)
	assert.Empty(t, ts.stdout.String())
	assert.Equal(t, "pipesh-missing: command not found\n", ts.stderr.String())

	_, err := os.Stat(filepath.Join(ts.dir, "created.txt"))
	assert.True(t, os.IsNotExist(err), "nothing may run when a stage is unresolved")
}

func TestShell_blankLineKeepsStatus(t *testing.T) {
	ts := newTestShell(t, "")
	ctx := context.Background()

	assert.Equal(t, 127, ts.RunLine(ctx, "pipesh-missing"))
	assert.Equal(t, 127, ts.RunLine(ctx, "   "))
	assert.Equal(t, 127, ts.LastStatus())
	assert.Equal(t, 0, ts.RunLine(ctx, "echo"))
}

func TestShell_externalPipeline(t *testing.T) {
	requireProgram(t, "tr", "cat")
	ts := newTestShell(t, "")

	status := ts.RunLine(context.Background(), "echo hello world | tr a-z A-Z | cat")
	assert.Equal(t, 0, status)
	assert.Equal(t, "HELLO WORLD\n", ts.stdout.String())
	assert.Empty(t, ts.stderr.String())
}

func TestShell_externalEnvironment(t *testing.T) {
	requireProgram(t, "env", "pwd")
	ts := newTestShell(t, "")
	ctx := context.Background()
	require.NoError(t, os.Mkdir(filepath.Join(ts.dir, "sub"), 0755))
	require.NoError(t, ts.Setenv("PIPESH_TEST", "yes"))

	ts.RunLine(ctx, "cd sub")
	ts.reset()
	assert.Equal(t, 0, ts.RunLine(ctx, "env"))
	assert.Contains(t, ts.stdout.String(), "PIPESH_TEST=yes\n")

	ts.reset()
	path, err := exec.LookPath("pwd")
	require.NoError(t, err)
	assert.Equal(t, 0, ts.RunLine(ctx, path))
	assert.Equal(t, filepath.Join(ts.dir, "sub")+"\n", ts.stdout.String())
}

func TestShell_permissionDenied(t *testing.T) {
	ts := newTestShell(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(ts.dir, "script.sh"), []byte("#!/bin/sh\necho hi\n"), 0644))

	status := ts.RunLine(context.Background(), "./script.sh")
	assert.Equal(t, 126, status)
	assert.Contains(t, ts.stderr.String(), "Permission denied")
}

func TestShell_RunCommandBindsStdin(t *testing.T) {
	requireProgram(t, "cat")
	ts := newTestShell(t, "from stdin\n")

	status := ts.RunCommand(context.Background(), "cat | cat")
	assert.Equal(t, 0, status)
	assert.Equal(t, "from stdin\n", ts.stdout.String())
}

// consoleShell runs interactively on a console the test types into.
type consoleShell struct {
	*Shell

	typist *io.PipeWriter
	stdout *syncBuffer
	events *syncBuffer
	status chan int
}

func startConsoleShell(t *testing.T, terminal bool) *consoleShell {
	t.Helper()

	pr, pw := io.Pipe()
	cs := &consoleShell{
		typist: pw,
		stdout: &syncBuffer{},
		events: &syncBuffer{},
		status: make(chan int, 1),
	}

	cfg := config.Default()
	cfg.Color = config.ColorNever
	cfg.Pipeline.WaitDelay.Duration = time.Minute

	dir := t.TempDir()
	sh, err := NewShell(Options{
		Stdio:         vos.NewVIOAdapter(pr, cs.stdout, cs.stdout),
		Configuration: cfg,
		Events:        logger.NewJsonLinesLogRecorder(cs.events).NewSession(),
		Environ:       []string{"HOME=" + dir, "PATH=" + os.Getenv("PATH"), "USER=tester"},
		Dir:           dir,
		Terminal: Terminal{
			IsTerminal: func() bool { return terminal },
			Width:      func() int { return 80 },
		},
	})
	require.NoError(t, err)
	cs.Shell = sh

	go func() {
		cs.status <- sh.RunInteractive(context.Background())
	}()
	t.Cleanup(func() { pw.Close() })
	return cs
}

func (cs *consoleShell) running() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cancel != nil
}

func (cs *consoleShell) typeText(t *testing.T, text string) {
	t.Helper()
	_, err := io.WriteString(cs.typist, text)
	require.NoError(t, err)
}

func (cs *consoleShell) waitRunning(t *testing.T) {
	t.Helper()
	require.Eventually(t, cs.running, 5*time.Second, 10*time.Millisecond, "pipeline never started")
	// Give the program time to start.
	time.Sleep(200 * time.Millisecond)
}

func (cs *consoleShell) waitOutput(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(cs.stdout.String(), want)
	}, 10*time.Second, 10*time.Millisecond, "output never contained %q", want)
}

// finish ends the console's input and returns the shell's status.
func (cs *consoleShell) finish(t *testing.T) int {
	t.Helper()
	cs.typist.Close()

	select {
	case status := <-cs.status:
		return status
	case <-time.After(10 * time.Second):
		t.Fatal("shell didn't stop at end of input")
		return -1
	}
}

func TestShell_RunInteractive(t *testing.T) {
	t.Run("first stage reads the console", func(t *testing.T) {
		requireProgram(t, "cat", "tr")
		cs := startConsoleShell(t, false)

		cs.typeText(t, "cat | tr a-z A-Z\n")
		cs.waitRunning(t)
		cs.typeText(t, "typed while running\n")

		// End of input stops cat, then the shell.
		assert.Equal(t, 0, cs.finish(t))
		assert.Contains(t, cs.stdout.String(), "TYPED WHILE RUNNING\n")
		assert.Equal(t, []string{"cat | tr a-z A-Z"}, cs.History())
		assert.NotContains(t, cs.stdout.String(), "command not found")
	})

	t.Run("input a stage doesn't read goes to the next line", func(t *testing.T) {
		requireProgram(t, "true")
		cs := startConsoleShell(t, false)

		cs.typeText(t, "true\n")
		// WaitDelay is a minute, true must not wait on the console.
		require.Eventually(t, func() bool {
			return strings.Contains(cs.events.String(), `"resolved_path"`)
		}, 10*time.Second, 10*time.Millisecond)

		cs.typeText(t, "echo next line\n")
		cs.waitOutput(t, "next line\n")

		assert.Equal(t, 0, cs.finish(t))
		assert.Equal(t, []string{"true", "echo next line"}, cs.History())
	})

	t.Run("terminal end of input", func(t *testing.T) {
		requireProgram(t, "cat")
		cs := startConsoleShell(t, true)

		cs.typeText(t, "cat\r")
		cs.waitRunning(t)
		cs.typeText(t, "hi\r")
		require.Eventually(t, func() bool {
			// Echoed and then copied by cat.
			return strings.Count(cs.stdout.String(), "hi\n") >= 2
		}, 10*time.Second, 10*time.Millisecond)

		cs.typeText(t, string(rune(readline.CharDelete)))
		require.Eventually(t, func() bool { return !cs.running() }, 10*time.Second, 10*time.Millisecond)
		assert.Equal(t, 0, cs.finish(t))
	})

	t.Run("terminal interrupt", func(t *testing.T) {
		requireProgram(t, "sleep")
		cs := startConsoleShell(t, true)

		cs.typeText(t, "sleep 10\r")
		cs.waitRunning(t)
		cs.typeText(t, string(rune(readline.CharInterrupt)))

		require.Eventually(t, func() bool { return !cs.running() }, 5*time.Second, 10*time.Millisecond)
		assert.Equal(t, 128+9, cs.finish(t))
	})
}

func TestShell_RunScript(t *testing.T) {
	requireProgram(t, "cat")
	script := "echo a\ncat\nexit 4\necho b\n"
	ts := newTestShell(t, "")

	status := ts.RunScript(context.Background(), strings.NewReader(script))
	assert.Equal(t, 4, status)
	// The script isn't fed to cat.
	assert.Equal(t, "a\n", ts.stdout.String())
	assert.True(t, ts.Exited())
}

func TestShell_Interrupt(t *testing.T) {
	requireProgram(t, "sleep")
	ts := newTestShell(t, "")
	assert.False(t, ts.Interrupt(), "nothing is running")

	done := make(chan int)
	go func() {
		done <- ts.RunLine(context.Background(), "sleep 10")
	}()

	deadline := time.After(5 * time.Second)
	for !ts.running() {
		select {
		case <-deadline:
			t.Fatal("pipeline never started")
		case <-time.After(10 * time.Millisecond):
		}
	}
	// Give sleep time to start so it's killed rather than never launched.
	time.Sleep(200 * time.Millisecond)
	assert.True(t, ts.Interrupt())

	select {
	case status := <-done:
		assert.Equal(t, 128+9, status)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline wasn't cancelled")
	}
}

func TestShell_history(t *testing.T) {
	ts := newTestShell(t, "")
	ts.configuration.History.Limit = 2

	ts.addHistory("one")
	ts.addHistory("  ")
	ts.addHistory("two")
	ts.addHistory("three")
	assert.Equal(t, []string{"two", "three"}, ts.History())

	ts.RunLine(context.Background(), "history")
	assert.Equal(t, "    1  two\n    2  three\n", ts.stdout.String())

	ts.RunLine(context.Background(), "history -c")
	assert.Empty(t, ts.History())
}

func TestShell_loadHistory(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Initialize(dir, log.New(ioutil.Discard, "", 0))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(cfg.HistoryPath(), []byte("ls\necho hi\n"), 0600))

	sh, err := NewShell(Options{Configuration: cfg, Dir: dir})
	require.NoError(t, err)
	sh.loadHistory()
	assert.Equal(t, []string{"ls", "echo hi"}, sh.History())
}

func TestShell_events(t *testing.T) {
	ts := newTestShell(t, "")
	ctx := context.Background()

	ts.RunLine(ctx, "echo hi | echo there > out.txt")
	ts.RunLine(ctx, "pipesh-missing arg")
	ts.RunLine(ctx, "echo '")
	ts.RunLine(ctx, "echo --bogus")

	var types []logger.EventType
	entries := ts.recorded(t)
	for _, le := range entries {
		types = append(types, le.EventType)
	}
	assert.Equal(t, []logger.EventType{
		logger.TypeRunCommand,
		logger.TypeRunCommand,
		logger.TypeUnknownCommand,
		logger.TypeSyntaxError,
		logger.TypeInvalidInvocation,
		logger.TypeRunCommand,
	}, types)

	assert.Equal(t, "> out.txt", entries[1].String("redirect"))
	assert.Equal(t, "builtin", entries[1].String("kind"))
	assert.Equal(t, []string{"pipesh-missing", "arg"}, entries[2].Strings("command"))
	assert.Equal(t, "unterminated single quote", entries[3].String("message"))
	assert.Equal(t, 2, entries[5].Int("status"))
}

func TestNewShell_badDir(t *testing.T) {
	_, err := NewShell(Options{Dir: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
}
