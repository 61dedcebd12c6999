package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/josephlewis42/pipesh/commands"
	"github.com/josephlewis42/pipesh/core/shell"
	"github.com/josephlewis42/pipesh/core/vos"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Runner executes pipelines for a shell session.
type Runner struct {
	// Stdio is the console. Its Stdin is never read, see Stdin.
	Stdio vos.VIO
	// Stdin feeds the first stage, nil gives it no input. A
	// vos.CancelableReader is cancelled once the stage that reads it exits,
	// so input it didn't read is left for the caller.
	Stdin io.Reader
	// Dir is the working directory of every stage, relative redirection
	// targets are resolved against it.
	Dir string
	// Env is the environment of external stages.
	Env []string
	// Fs opens redirection targets, defaults to the OS filesystem.
	Fs afero.Fs
	// Session is handed to builtins.
	Session commands.Session
	// Logger receives diagnostics, may be nil.
	Logger *log.Logger
	// WaitDelay bounds how long to wait for a child's I/O to drain after it
	// exits, see exec.Cmd.WaitDelay. Zero waits forever.
	WaitDelay time.Duration
}

// Result holds the outcome of a pipeline.
type Result struct {
	// Statuses has the exit status of each stage, StatusNotStarted for stages
	// that never ran.
	Statuses []int
	// Errors has every LaunchError, RedirectionIOError and PanicError
	// encountered, in the order they happened.
	Errors []error
}

func newResult(n int) *Result {
	res := &Result{Statuses: make([]int, n)}
	for i := range res.Statuses {
		res.Statuses[i] = StatusNotStarted
	}
	return res
}

// ExitStatus is the status of the pipeline as a whole: the status of the
// last stage, or of the launch failure that stopped the pipeline early.
func (r *Result) ExitStatus() int {
	if len(r.Statuses) == 0 {
		return 0
	}
	if status := r.Statuses[len(r.Statuses)-1]; status != StatusNotStarted {
		return status
	}

	for _, err := range r.Errors {
		var launchErr *LaunchError
		if errors.As(err, &launchErr) {
			return launchErr.ExitStatus()
		}
	}
	return 1
}

func (r *Result) addErr(err error) {
	r.Errors = append(r.Errors, err)
}

// lockedWriter serializes writes from concurrently running stages.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(b)
}

// shareable returns a writer safe to hand to several processes at once.
// Files are passed through so children write to them directly.
func shareable(w io.Writer) io.Writer {
	if _, ok := w.(*os.File); ok {
		return w
	}
	return &lockedWriter{w: w}
}

// run holds the state of a single pipeline execution.
type run struct {
	*Runner

	ctx    context.Context
	stages []*ResolvedStage
	res    *Result

	console struct {
		out io.Writer
		err io.Writer
	}

	// Streams of the last stage, after redirection.
	tailOut io.Writer
	tailErr io.Writer
	// redirectFailed is set if the last stage's redirection couldn't be
	// opened.
	redirectFailed bool
}

// Run executes the stages, which must all have been resolved, and waits for
// every one of them to finish. Errors are written to the console and
// collected in the Result, they never stop the caller.
func (r *Runner) Run(ctx context.Context, stages []*ResolvedStage) *Result {
	p := &run{
		Runner: r,
		ctx:    ctx,
		stages: stages,
		res:    newResult(len(stages)),
	}
	if len(stages) == 0 {
		return p.res
	}

	p.console.out = shareable(r.Stdio.Stdout())
	p.console.err = shareable(r.Stdio.Stderr())
	p.tailOut = p.console.out
	p.tailErr = p.console.err

	tail := len(stages) - 1
	for i, stage := range stages[:tail] {
		if stage.Redirect != nil {
			r.logf("stage %d (%s): ignoring redirection %q, only the last stage may redirect", i, stage.Name, stage.Redirect.String())
		}
	}

	if redirect := stages[tail].Redirect; redirect != nil {
		closeRedirect := p.openRedirect(tail, redirect)
		defer closeRedirect()
	}

	var in io.Reader = r.Stdin
	for start := 0; start < len(stages); {
		if ctx.Err() != nil {
			break
		}

		if stages[start].Kind == Builtin {
			in = p.runBuiltin(start, in)
			start++
			continue
		}

		end := start
		for end+1 < len(stages) && stages[end+1].Kind == External {
			end++
		}

		var ok bool
		in, ok = p.runExternal(start, end, in)
		if !ok {
			break
		}
		start = end + 1
	}

	if p.redirectFailed && p.res.Statuses[tail] == 0 {
		p.res.Statuses[tail] = 1
	}

	return p.res
}

func (r *Runner) logf(format string, v ...interface{}) {
	if r.Logger != nil {
		r.Logger.Printf(format, v...)
	}
}

func (r *Runner) fs() afero.Fs {
	if r.Fs == nil {
		return afero.NewOsFs()
	}
	return r.Fs
}

func (p *run) report(err error) {
	p.res.addErr(err)
	fmt.Fprintf(p.console.err, "pipesh: %v\n", err)
}

// openRedirect binds the last stage's redirected stream to its target. If the
// target can't be opened the stream is discarded and the stage still runs.
func (p *run) openRedirect(stage int, redirect *shell.Redirection) (closer func()) {
	target := redirect.Target
	if !filepath.IsAbs(target) {
		target = filepath.Join(p.Dir, target)
	}

	flag := os.O_WRONLY | os.O_CREATE
	if redirect.Mode == shell.Append {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}

	var w io.Writer = io.Discard
	closer = func() {}

	fd, err := p.fs().OpenFile(target, flag, 0644)
	if err != nil {
		p.redirectFailed = true
		p.report(&RedirectionIOError{Stage: stage, Redirect: redirect, Err: err})
	} else {
		w = fd
		closer = func() {
			if err := fd.Close(); err != nil {
				p.logf("closing %q: %v", target, err)
			}
		}
	}

	switch redirect.Stream {
	case shell.Stdout:
		p.tailOut = w
	case shell.Stderr:
		p.tailErr = w
	}
	return closer
}

// streams returns where a stage writes. Only the last stage writes to the
// (possibly redirected) console output; the rest feed the next stage.
func (p *run) streams(stage int) (out, errOut io.Writer, isTail bool) {
	if stage == len(p.stages)-1 {
		return p.tailOut, p.tailErr, true
	}
	return nil, p.console.err, false
}

// runBuiltin runs a builtin on the calling goroutine and returns what the
// next stage reads.
func (p *run) runBuiltin(idx int, in io.Reader) io.Reader {
	stage := p.stages[idx]
	out, errOut, isTail := p.streams(idx)

	var next *bytes.Buffer
	var buffered *bufio.Writer
	switch {
	case !isTail:
		next = &bytes.Buffer{}
		out = next
	case stage.Redirect != nil && stage.Redirect.Stream == shell.Stdout && !p.redirectFailed:
		buffered = bufio.NewWriter(out)
		out = buffered
	case stage.Redirect != nil && stage.Redirect.Stream == shell.Stderr && !p.redirectFailed:
		buffered = bufio.NewWriter(errOut)
		errOut = buffered
	}

	p.res.Statuses[idx] = p.callBuiltin(idx, stage, vos.NewVIOAdapter(in, out, errOut))

	if buffered != nil {
		if err := buffered.Flush(); err != nil {
			p.report(&RedirectionIOError{Stage: idx, Redirect: stage.Redirect, Err: err})
			if p.res.Statuses[idx] == 0 {
				p.res.Statuses[idx] = 1
			}
		}
	}

	if next == nil {
		return nil
	}
	return next
}

func (p *run) callBuiltin(idx int, stage *ResolvedStage, stdio vos.VIO) (status int) {
	defer func() {
		if v := recover(); v != nil {
			panicErr := &PanicError{Stage: idx, Name: stage.Name, Value: v, Stack: debug.Stack()}
			p.res.addErr(panicErr)
			p.logf("%v\n%s", panicErr, panicErr.Stack)
			fmt.Fprintf(stdio.Stderr(), "%s: internal error\n", stage.Name)
			status = 2
		}
	}()

	return stage.Handler.Main(&commands.Invocation{
		VIO:     vos.NoClose(stdio),
		Args:    stage.Tokens(),
		Session: p.Session,
	})
}

// runExternal starts stages start through end connected by OS pipes, waits
// for all of them and returns what the next stage reads. ok is false if a
// stage failed to start.
func (p *run) runExternal(start, end int, in io.Reader) (next io.Reader, ok bool) {
	n := end - start + 1
	cmds := make([]*exec.Cmd, n)
	for i := range cmds {
		stage := p.stages[start+i]

		cmd := exec.CommandContext(p.ctx, stage.Path)
		cmd.Args = stage.Tokens()
		cmd.Dir = p.Dir
		cmd.Env = p.Env
		cmd.WaitDelay = p.WaitDelay
		_, cmd.Stderr, _ = p.streams(start + i)
		cmds[i] = cmd
	}

	// The parent's copies of the pipe ends are closed once every child that
	// will run has started so EOF and SIGPIPE reach the children.
	var parentEnds []*os.File
	closeParentEnds := func() {
		for _, f := range parentEnds {
			f.Close()
		}
		parentEnds = nil
	}
	defer closeParentEnds()

	pipeErr := -1
	stopInput := func() {}
	if in != nil && !vos.IsNull(in) {
		cancelable, ok := in.(vos.CancelableReader)
		if !ok {
			cmds[0].Stdin = in
		} else if pr, stop, err := feed(cancelable); err != nil {
			pipeErr = 0
			p.report(&LaunchError{Stage: start, Name: p.stages[start].Name, Path: p.stages[start].Path, Err: err})
		} else {
			parentEnds = append(parentEnds, pr)
			cmds[0].Stdin = pr
			stopInput = stop
		}
	}
	defer stopInput()

	for i := 0; pipeErr < 0 && i < n-1; i++ {
		pr, pw, err := os.Pipe()
		if err != nil {
			pipeErr = i
			p.report(&LaunchError{Stage: start + i, Name: p.stages[start+i].Name, Path: p.stages[start+i].Path, Err: err})
			break
		}
		parentEnds = append(parentEnds, pr, pw)
		cmds[i].Stdout = pw
		cmds[i+1].Stdin = pr
	}

	var captured *bytes.Buffer
	if end == len(p.stages)-1 {
		cmds[n-1].Stdout, _, _ = p.streams(end)
	} else {
		captured = &bytes.Buffer{}
		cmds[n-1].Stdout = captured
	}

	started := 0
	if pipeErr < 0 {
		for i, cmd := range cmds {
			if err := cmd.Start(); err != nil {
				stage := p.stages[start+i]
				launchErr := &LaunchError{Stage: start + i, Name: stage.Name, Path: stage.Path, Err: err}
				p.res.Statuses[start+i] = launchErr.ExitStatus()
				p.report(launchErr)
				break
			}
			started++
		}
	}
	closeParentEnds()

	var g errgroup.Group
	for i := 0; i < started; i++ {
		idx, cmd := start+i, cmds[i]
		g.Go(func() error {
			err := cmd.Wait()
			if idx == start {
				stopInput()
			}
			p.res.Statuses[idx] = exitStatus(cmd, err)
			if err != nil && cmd.ProcessState == nil {
				p.logf("stage %d (%s): wait: %v", idx, p.stages[idx].Name, err)
			}
			return nil
		})
	}
	g.Wait()

	if started < n {
		return nil, false
	}
	if captured == nil {
		return nil, true
	}
	return captured, true
}

// feed copies in to a pipe whose read end becomes a child's stdin. stop
// cancels in and waits for the copy to end, it must be called after the
// parent's read end is closed.
func feed(in vos.CancelableReader) (stdin *os.File, stop func(), err error) {
	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	copied := make(chan struct{})
	go func() {
		defer close(copied)
		defer pw.Close()
		io.Copy(pw, in)
	}()

	var once sync.Once
	stop = func() {
		once.Do(func() {
			in.Cancel()
			<-copied
		})
	}
	return pr, stop, nil
}

// exitStatus converts the result of Wait to a shell exit status, a child
// killed by a signal reports 128 plus the signal number.
func exitStatus(cmd *exec.Cmd, err error) int {
	ps := cmd.ProcessState
	if ps == nil {
		if err != nil {
			return 1
		}
		return 0
	}

	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ps.ExitCode()
}
