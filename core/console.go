package core

import (
	"io"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/pipesh/core/vos"
)

// ttyInput feeds console input to a pipeline when the console is a terminal
// we only see through a stream, like an SSH pty. It does the little the
// terminal's line discipline would: typed input is echoed, carriage returns
// end lines, ^C interrupts the pipeline and ^D ends its input.
type ttyInput struct {
	*vos.InputReader

	echo      io.Writer
	interrupt func() bool
	eof       bool
}

var _ vos.CancelableReader = (*ttyInput)(nil)

func (t *ttyInput) Read(p []byte) (int, error) {
	for {
		if t.eof {
			return 0, io.EOF
		}

		n, err := t.InputReader.Read(p)
		kept := 0
	scan:
		for _, b := range p[:n] {
			switch b {
			case readline.CharInterrupt:
				t.interrupt()
				continue
			case readline.CharDelete:
				t.eof = true
				break scan
			case readline.CharEnter:
				b = '\n'
			}
			p[kept] = b
			kept++
		}

		if kept > 0 {
			t.echo.Write(p[:kept])
		}
		if kept > 0 || err != nil {
			return kept, err
		}
	}
}
