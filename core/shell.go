// Package core ties the parser, the builtins and the pipeline runner together
// into an interactive shell, and serves that shell over SSH.
package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"io/ioutil"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/pipeline"
	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/josephlewis42/pipesh/core/vos"
	"github.com/spf13/afero"
)

const (
	EnvHome     = "HOME"
	EnvPWD      = "PWD"
	EnvOldPwd   = "OLDPWD"
	EnvPath     = "PATH"
	EnvPrompt   = "PS1"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"

	DefaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// StatusSyntaxError is the exit status of a line that couldn't be parsed.
const StatusSyntaxError = 2

// Terminal describes the terminal a shell is attached to.
type Terminal struct {
	// IsTerminal reports whether the console is a terminal.
	IsTerminal func() bool
	// Width is the terminal's width in columns.
	Width func() int
	// Local is set when the console is the process's own terminal. Its mode
	// is switched while reading lines and its line discipline handles input
	// while pipelines run.
	Local bool
}

// Options configure a new Shell.
type Options struct {
	Stdio         vos.VIO
	Configuration *config.Configuration
	// Events receives the session's events, nil discards them.
	Events *logger.SessionLogger
	// AppLog receives diagnostics, nil discards them.
	AppLog *log.Logger
	// Environ seeds the environment.
	Environ []string
	// Dir is the starting directory. If empty PWD is used if it names a
	// directory, otherwise the process's working directory.
	Dir      string
	Terminal Terminal
	// Fs is used for cd, executable lookup and redirection. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// Registry holds the builtins, defaults to commands.Builtins.
	Registry *commands.Registry
}

// Shell holds the state of one session: its working directory, environment,
// history and the status of the last pipeline.
type Shell struct {
	configuration *config.Configuration
	events        *logger.SessionLogger
	appLog        *log.Logger
	stdio         vos.VIO
	env           vos.VEnv
	dir           string
	fs            afero.Fs
	resolver      *vos.PathResolver
	registry      *commands.Registry
	terminal      Terminal
	color         bool

	// bindStdin is set when the first stage of each pipeline reads the
	// console. Consoles that aren't files are read through input so a stage
	// only takes what it reads.
	bindStdin bool
	input     *vos.SharedInput
	readline  *readline.Instance

	history    []string
	lastStatus int
	quit       bool
	exitCode   int

	mu     sync.Mutex
	cancel context.CancelFunc
}

var _ commands.Session = (*Shell)(nil)

// NewShell creates a shell, the session's environment is a copy of
// opts.Environ.
func NewShell(opts Options) (*Shell, error) {
	s := &Shell{
		configuration: opts.Configuration,
		events:        opts.Events,
		appLog:        opts.AppLog,
		stdio:         opts.Stdio,
		env:           vos.NewMapEnvFromEnvList(opts.Environ),
		fs:            opts.Fs,
		registry:      opts.Registry,
		terminal:      opts.Terminal,
	}

	if s.configuration == nil {
		s.configuration = config.Default()
	}
	if s.events == nil {
		s.events = logger.Discard().Sessionless()
	}
	if s.appLog == nil {
		s.appLog = log.New(ioutil.Discard, "", 0)
	}
	if s.stdio == nil {
		s.stdio = vos.NewNullIO()
	}
	if s.fs == nil {
		s.fs = afero.NewOsFs()
	}
	if s.registry == nil {
		s.registry = commands.Builtins
	}
	if s.terminal.IsTerminal == nil {
		s.terminal.IsTerminal = func() bool { return commands.IsTerminal(s.stdio.Stdout()) }
	}

	s.resolver = &vos.PathResolver{Fs: s.fs, Env: s.env, Dir: s.Getwd}

	if stdin := s.stdio.Stdin(); !isFile(stdin) && !vos.IsNull(stdin) {
		s.input = vos.NewSharedInput(stdin)
	}

	if err := s.init(opts.Dir); err != nil {
		return nil, err
	}

	switch s.configuration.Color {
	case config.ColorAlways:
		s.color = true
	case config.ColorAuto:
		s.color = s.terminal.IsTerminal()
	}

	return s, nil
}

// init sets up the environment similar to login.
func (s *Shell) init(dir string) error {
	if s.env.Getenv(EnvPath) == "" {
		s.env.Setenv(EnvPath, DefaultPath)
	}

	if s.env.Getenv(EnvUser) == "" {
		if u, err := user.Current(); err == nil {
			s.env.Setenv(EnvUser, u.Username)
		}
	}

	if s.env.Getenv(EnvHome) == "" {
		if home, err := os.UserHomeDir(); err == nil {
			s.env.Setenv(EnvHome, home)
		}
	}

	if s.env.Getenv(EnvHostname) == "" {
		if host, err := os.Hostname(); err == nil {
			s.env.Setenv(EnvHostname, host)
		}
	}

	if dir == "" {
		if pwd := s.env.Getenv(EnvPWD); filepath.IsAbs(pwd) && s.isDir(pwd) {
			dir = pwd
		} else if wd, err := os.Getwd(); err == nil {
			dir = wd
		} else {
			dir = "/"
		}
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if !s.isDir(dir) {
		return &fs.PathError{Op: "chdir", Path: dir, Err: vos.ErrNotDirectory}
	}

	s.dir = dir
	s.env.Setenv(EnvPWD, dir)
	return nil
}

func (s *Shell) isDir(dir string) bool {
	info, err := s.fs.Stat(dir)
	return err == nil && info.IsDir()
}

// Getwd implements commands.Session.
func (s *Shell) Getwd() string {
	return s.dir
}

// Chdir implements commands.Session.
func (s *Shell) Chdir(dir string) error {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.dir, dir)
	}
	dir = filepath.Clean(dir)

	info, err := s.fs.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "chdir", Path: dir, Err: vos.ErrNotDirectory}
	}

	s.env.Setenv(EnvOldPwd, s.dir)
	s.env.Setenv(EnvPWD, dir)
	s.dir = dir
	return nil
}

// Getenv implements commands.Session.
func (s *Shell) Getenv(key string) string {
	return s.env.Getenv(key)
}

// Setenv sets a variable in the session's environment.
func (s *Shell) Setenv(key, value string) error {
	return s.env.Setenv(key, value)
}

// Environ returns the session's environment.
func (s *Shell) Environ() []string {
	return s.env.Environ()
}

// LookPath implements commands.Session.
func (s *Shell) LookPath(name string) (string, error) {
	return s.resolver.Resolve(name)
}

// History implements commands.Session.
func (s *Shell) History() []string {
	return append([]string(nil), s.history...)
}

// ClearHistory implements commands.Session.
func (s *Shell) ClearHistory() {
	s.history = nil
	if s.readline != nil {
		s.readline.ResetHistory()
	}
}

func (s *Shell) addHistory(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}

	s.history = append(s.history, line)
	if limit := s.configuration.History.Limit; len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
}

// loadHistory reads the saved history, readline keeps the file up to date.
func (s *Shell) loadHistory() {
	path := s.configuration.HistoryPath()
	if path == "" {
		return
	}

	contents, err := ioutil.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.appLog.Printf("loading history: %v", err)
		}
		return
	}

	for _, line := range strings.Split(string(contents), "\n") {
		s.addHistory(line)
	}
}

// LastStatus implements commands.Session.
func (s *Shell) LastStatus() int {
	return s.lastStatus
}

// Exit implements commands.Session.
func (s *Shell) Exit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quit = true
	s.exitCode = code
}

// Exited reports whether exit was requested.
func (s *Shell) Exited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quit
}

func (s *Shell) exitStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quit {
		return s.exitCode
	}
	return s.lastStatus
}

// Builtins implements commands.Session.
func (s *Shell) Builtins() *commands.Registry {
	return s.registry
}

// LogInvalidInvocation implements commands.Session.
func (s *Shell) LogInvalidInvocation(args []string, err error) {
	s.record(&logger.InvalidInvocation{Command: args, Error: err.Error()})
}

func (s *Shell) record(event logger.Event) {
	if err := s.events.Record(event); err != nil {
		s.appLog.Printf("recording %s event: %v", event.Type(), err)
	}
}

// Interrupt cancels the running pipeline, if any. It reports whether there
// was one.
func (s *Shell) Interrupt() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

func (s *Shell) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = cancel
}

func (s *Shell) printError(format string, a ...interface{}) {
	prefix := "pipesh:"
	if s.color {
		prefix = forceColor(colorError).Sprint(prefix)
	}
	fmt.Fprintf(s.stdio.Stderr(), "%s %s\n", prefix, fmt.Sprintf(format, a...))
}

// RunLine parses, resolves and runs one line and returns its exit status.
// A blank line runs nothing and keeps the previous status.
func (s *Shell) RunLine(ctx context.Context, line string) int {
	s.lastStatus = s.runLine(ctx, line)
	return s.lastStatus
}

func (s *Shell) runLine(ctx context.Context, line string) int {
	stages, err := shell.Parse(line)
	if err != nil {
		var syntaxErr *shell.SyntaxError
		if errors.As(err, &syntaxErr) {
			s.record(&logger.SyntaxError{Line: line, Offset: syntaxErr.Offset, Message: syntaxErr.Msg})
		}
		s.printError("%v", err)
		return StatusSyntaxError
	}
	if len(stages) == 0 {
		return s.lastStatus
	}

	resolved, status, ok := s.resolve(line, stages)
	if !ok {
		return status
	}

	ctx, cancel := context.WithCancel(ctx)
	s.setCancel(cancel)
	defer func() {
		s.setCancel(nil)
		cancel()
	}()

	stdin, release := s.stageInput()
	defer release()

	runner := &pipeline.Runner{
		Stdio:     s.stdio,
		Stdin:     stdin,
		Dir:       s.dir,
		Env:       s.env.Environ(),
		Fs:        s.fs,
		Session:   s,
		Logger:    s.appLog,
		WaitDelay: s.configuration.Pipeline.WaitDelay.Duration,
	}
	result := runner.Run(ctx, resolved)
	s.recordResult(line, resolved, result)

	return result.ExitStatus()
}

func isFile(r io.Reader) bool {
	_, ok := r.(*os.File)
	return ok
}

// stageInput returns what the first stage of a pipeline reads and a func that
// releases it once the pipeline is done.
func (s *Shell) stageInput() (stdin io.Reader, release func()) {
	if !s.bindStdin {
		return nil, func() {}
	}
	if s.input == nil {
		return s.stdio.Stdin(), func() {}
	}

	r := s.input.NewReader()
	if !s.terminal.Local && s.terminal.IsTerminal() {
		return &ttyInput{InputReader: r, echo: s.stdio.Stdout(), interrupt: s.Interrupt}, r.Cancel
	}
	return r, r.Cancel
}

// resolve looks up every stage. If any stage can't be resolved each one is
// reported and nothing runs.
func (s *Shell) resolve(line string, stages []shell.Stage) (resolved []*pipeline.ResolvedStage, status int, ok bool) {
	var unresolved []*pipeline.ResolutionError

	for _, stage := range stages {
		stage, redirect := shell.ResolveRedirection(stage)
		if stage.Name == "" {
			err := &shell.SyntaxError{Offset: len(line), Msg: fmt.Sprintf("missing command before %q", redirect.String())}
			s.record(&logger.SyntaxError{Line: line, Offset: err.Offset, Message: err.Msg})
			s.printError("%v", err)
			return nil, StatusSyntaxError, false
		}

		if builtin, found := s.registry.Get(stage.Name); found {
			resolved = append(resolved, pipeline.NewBuiltinStage(stage, redirect, builtin))
			continue
		}

		path, err := s.resolver.Resolve(stage.Name)
		switch {
		case err == nil:
			resolved = append(resolved, pipeline.NewExternalStage(stage, redirect, path))
		case errors.Is(err, fs.ErrPermission) && strings.Contains(stage.Name, "/"):
			// An explicit path that isn't executable fails at launch with
			// "Permission denied" like other shells.
			resolved = append(resolved, pipeline.NewExternalStage(stage, redirect, s.abs(stage.Name)))
		default:
			unresolved = append(unresolved, &pipeline.ResolutionError{Name: stage.Name, Err: err})
			s.record(&logger.UnknownCommand{
				Line:    line,
				Command: stage.Tokens(),
				Status:  pipeline.StatusNotFound,
				Error:   err.Error(),
			})
		}
	}

	if len(unresolved) > 0 {
		for _, err := range unresolved {
			fmt.Fprintln(s.stdio.Stderr(), err)
		}
		return nil, pipeline.StatusNotFound, false
	}

	return resolved, 0, true
}

func (s *Shell) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.dir, path)
}

func (s *Shell) recordResult(line string, stages []*pipeline.ResolvedStage, result *pipeline.Result) {
	for i, stage := range stages {
		event := &logger.RunCommand{
			Line:         line,
			Stage:        i,
			Command:      stage.Tokens(),
			Kind:         stage.Kind.String(),
			ResolvedPath: stage.Path,
			Status:       result.Statuses[i],
		}
		if stage.Redirect != nil {
			event.Redirect = stage.Redirect.String()
		}
		s.record(event)
	}

	for _, err := range result.Errors {
		var (
			launchErr   *pipeline.LaunchError
			redirectErr *pipeline.RedirectionIOError
			panicErr    *pipeline.PanicError
		)
		switch {
		case errors.As(err, &launchErr):
			s.record(&logger.LaunchError{
				Command: stages[launchErr.Stage].Tokens(),
				Path:    launchErr.Path,
				Status:  launchErr.ExitStatus(),
				Error:   err.Error(),
			})
		case errors.As(err, &redirectErr):
			s.record(&logger.RedirectionError{
				Command:  stages[redirectErr.Stage].Tokens(),
				Redirect: redirectErr.Redirect.String(),
				Error:    err.Error(),
			})
		case errors.As(err, &panicErr):
			s.record(&logger.Panic{
				Context:    fmt.Sprintf("%s: %v", line, panicErr.Value),
				Stacktrace: string(panicErr.Stack),
			})
		}
	}
}

func (s *Shell) newReadline() (*readline.Instance, error) {
	limit := s.configuration.History.Limit
	if limit == 0 {
		limit = -1
	}

	var stdin io.ReadCloser
	if s.input != nil {
		stdin = s.input.NewReader()
	} else {
		stdin = readline.NewCancelableStdin(s.stdio.Stdin())
	}

	cfg := &readline.Config{
		Stdin:        stdin,
		Stdout:       s.stdio.Stdout(),
		Stderr:       s.stdio.Stderr(),
		HistoryFile:  s.configuration.HistoryPath(),
		HistoryLimit: limit,
		AutoComplete: &completer{shell: s},
		FuncIsTerminal: func() bool {
			return s.terminal.IsTerminal()
		},
	}
	if s.terminal.Width != nil {
		cfg.FuncGetWidth = s.terminal.Width
	}
	if !s.terminal.Local {
		// The default acts on the process's own stdin.
		cfg.FuncMakeRaw = func() error { return nil }
		cfg.FuncExitRaw = func() error { return nil }
	}

	if err := cfg.Init(); err != nil {
		stdin.Close()
		return nil, err
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		stdin.Close()
		return nil, err
	}
	return rl, nil
}

// RunInteractive reads lines with a line editor until end of input or exit
// and returns the shell's exit status. The first stage of each pipeline reads
// the console, readline only reads it while waiting for a line.
func (s *Shell) RunInteractive(ctx context.Context) int {
	s.record(&logger.SessionStart{Mode: "interactive", User: s.Getenv(EnvUser), Dir: s.dir})
	s.bindStdin = true
	defer func() { s.bindStdin = false }()

	rl, err := s.newReadline()
	if err != nil {
		s.printError("%v", err)
		return 1
	}
	s.readline = rl
	defer func() {
		rl.Close()
		s.readline = nil
	}()

	s.loadHistory()

	for !s.Exited() && ctx.Err() == nil {
		rl.SetPrompt(s.Prompt())
		line, err := rl.Readline()

		switch {
		case err == io.EOF:
			return s.exitStatus()
		case err == readline.ErrInterrupt:
			// Interrupt clears the line.
			continue
		case err != nil:
			s.appLog.Printf("readline: %v", err)
			return 1
		}

		s.addHistory(line)
		s.RunLine(ctx, line)
	}

	return s.exitStatus()
}

// RunScript runs each line read from r until end of input or exit. Stages
// never read from r.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) int {
	s.record(&logger.SessionStart{Mode: "script", User: s.Getenv(EnvUser), Dir: s.dir})
	s.bindStdin = false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for !s.Exited() && ctx.Err() == nil && scanner.Scan() {
		s.RunLine(ctx, scanner.Text())
	}

	if err := scanner.Err(); err != nil && !s.Exited() {
		s.printError("%v", err)
		return 1
	}
	return s.exitStatus()
}

// RunCommand runs a single line, its first stage reads from the console's
// stdin.
func (s *Shell) RunCommand(ctx context.Context, line string) int {
	s.record(&logger.SessionStart{Mode: "command", User: s.Getenv(EnvUser), Dir: s.dir})
	s.bindStdin = true
	defer func() { s.bindStdin = false }()

	s.RunLine(ctx, line)
	return s.exitStatus()
}
