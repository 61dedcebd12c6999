// Package ttylog records the console of a session and plays it back.
package ttylog

import (
	"io"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/josephlewis42/pipesh/core/vos"
	"github.com/juju/ratelimit"
)

var (
	bareLF = regexp.MustCompile(`\r?\n`)

	// sleep is replaced in tests.
	sleep = time.Sleep
)

// Stream identifies which console stream a chunk of data went through.
type Stream int

const (
	Stdin Stream = iota
	Stdout
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdin:
		return "stdin"
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// Entry is a single chunk of console I/O.
type Entry struct {
	TimestampMicros int64
	Stream          Stream
	Data            []byte
}

// Sink receives recorded entries.
type Sink func(e *Entry) error

// Source produces recorded entries.
type Source interface {
	// Next fetches the next available entry. It returns io.EOF if the source
	// has no more entries.
	Next() (*Entry, error)
}

// NewRealTimePlayback delays each entry by the time that passed between it
// and the previous one. If maxIdle > 0 no single pause is longer than maxIdle.
func NewRealTimePlayback(maxIdle time.Duration, next Sink) Sink {
	var prevMicros int64
	first := true

	return func(e *Entry) error {
		if first {
			prevMicros = e.TimestampMicros
			first = false
		}

		pause := time.Duration(e.TimestampMicros-prevMicros) * time.Microsecond
		prevMicros = e.TimestampMicros
		if maxIdle > 0 && pause > maxIdle {
			pause = maxIdle
		}
		if pause > 0 {
			sleep(pause)
		}

		return next(e)
	}
}

func toCRLF(data []byte) []byte {
	return bareLF.ReplaceAll(data, []byte("\r\n"))
}

// NewCRLFAdapter rewrites bare line feeds as CRLF. Sessions recorded without a
// terminal only write \n which makes playback in a raw terminal creep across
// the screen.
func NewCRLFAdapter(next Sink) Sink {
	return func(e *Entry) error {
		if e.Stream != Stdin {
			e.Data = toCRLF(e.Data)
		}
		return next(e)
	}
}

type crlfWriter struct {
	w io.Writer
}

// NewCRLFWriter rewrites bare line feeds written to w as CRLF, for a client
// whose terminal is in raw mode and won't return the carriage itself.
func NewCRLFWriter(w io.Writer) io.Writer {
	return &crlfWriter{w: w}
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(toCRLF(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// NewClientOutput writes what the client saw, stdout and stderr, to w.
func NewClientOutput(w io.Writer) Sink {
	return func(e *Entry) error {
		if e.Stream == Stdin {
			return nil
		}
		_, err := w.Write(e.Data)
		return err
	}
}

// NewRateLimitedWriter limits writes to w to bytesPerSecond.
func NewRateLimitedWriter(w io.Writer, bytesPerSecond int64) io.Writer {
	if bytesPerSecond <= 0 {
		return w
	}
	bucket := ratelimit.NewBucketWithRate(float64(bytesPerSecond), bytesPerSecond)
	return ratelimit.Writer(w, bucket)
}

// Replay reads every entry from the recording into the sink.
func Replay(recording Source, sink Sink) error {
	for {
		e, err := recording.Next()
		switch {
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		if err := sink(e); err != nil {
			return err
		}
	}
}

// Recorder is a VIO that copies all the I/O passing through it to a Sink.
type Recorder struct {
	*vos.VIOAdapter

	mu     sync.Mutex
	output Sink
	// Logger receives sink errors, they never fail the I/O itself.
	Logger *log.Logger
}

var _ vos.VIO = (*Recorder)(nil)

// NewRecorder wraps toWrap, every chunk read or written is sent to output.
func NewRecorder(toWrap vos.VIO, output Sink) *Recorder {
	r := &Recorder{output: output}
	r.VIOAdapter = &vos.VIOAdapter{
		IStdin:  &recordingReader{r: r, wrapped: toWrap.Stdin()},
		IStdout: &recordingWriter{r: r, stream: Stdout, wrapped: toWrap.Stdout()},
		IStderr: &recordingWriter{r: r, stream: Stderr, wrapped: toWrap.Stderr()},
	}
	return r
}

func (r *Recorder) record(stream Stream, data []byte) {
	if len(data) == 0 {
		return
	}

	e := &Entry{
		TimestampMicros: time.Now().UnixMicro(),
		Stream:          stream,
		Data:            append([]byte(nil), data...),
	}

	r.mu.Lock()
	err := r.output(e)
	r.mu.Unlock()

	if err != nil && r.Logger != nil {
		r.Logger.Printf("recording %s: %v", stream, err)
	}
}

type recordingReader struct {
	r       *Recorder
	wrapped io.ReadCloser
}

func (rr *recordingReader) Read(p []byte) (int, error) {
	n, err := rr.wrapped.Read(p)
	rr.r.record(Stdin, p[:n])
	return n, err
}

func (rr *recordingReader) Close() error {
	return rr.wrapped.Close()
}

type recordingWriter struct {
	r       *Recorder
	stream  Stream
	wrapped io.WriteCloser
}

func (rw *recordingWriter) Write(p []byte) (int, error) {
	n, err := rw.wrapped.Write(p)
	rw.r.record(rw.stream, p[:n])
	return n, err
}

func (rw *recordingWriter) Close() error {
	return rw.wrapped.Close()
}
