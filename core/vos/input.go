package vos

import (
	"io"
	"sync"
)

// CancelableReader is a reader whose pending and future reads can be stopped.
type CancelableReader interface {
	io.Reader

	// Cancel makes reads return io.EOF. Input not yet returned to the caller
	// is left for other readers.
	Cancel()
}

// SharedInput hands a single stream out to a succession of readers. Data read
// from the stream is kept until a reader consumes it, so a reader that is
// cancelled mid-read loses nothing.
type SharedInput struct {
	r io.Reader

	mu      sync.Mutex
	buf     []byte
	err     error
	reading bool
	ready   chan struct{}
}

// NewSharedInput wraps r. r must not be read by anything else afterwards.
func NewSharedInput(r io.Reader) *SharedInput {
	return &SharedInput{r: r, ready: make(chan struct{})}
}

// NewReader creates a reader of the shared stream.
func (in *SharedInput) NewReader() *InputReader {
	return &InputReader{input: in, cancel: make(chan struct{})}
}

func (in *SharedInput) fill() {
	chunk := make([]byte, 32*1024)
	n, err := in.r.Read(chunk)

	in.mu.Lock()
	defer in.mu.Unlock()
	in.buf = append(in.buf, chunk[:n]...)
	in.err = err
	in.reading = false
	close(in.ready)
	in.ready = make(chan struct{})
}

// InputReader reads a SharedInput until it's cancelled.
type InputReader struct {
	input  *SharedInput
	once   sync.Once
	cancel chan struct{}
}

var _ CancelableReader = (*InputReader)(nil)

// Read implements io.Reader. An error from the stream is returned once,
// after the data read before it.
func (r *InputReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	in := r.input
	for {
		select {
		case <-r.cancel:
			return 0, io.EOF
		default:
		}

		in.mu.Lock()
		if len(in.buf) > 0 {
			n := copy(p, in.buf)
			in.buf = in.buf[n:]
			in.mu.Unlock()
			return n, nil
		}
		if in.err != nil {
			err := in.err
			in.err = nil
			in.mu.Unlock()
			return 0, err
		}
		if !in.reading {
			in.reading = true
			go in.fill()
		}
		ready := in.ready
		in.mu.Unlock()

		select {
		case <-ready:
		case <-r.cancel:
			return 0, io.EOF
		}
	}
}

// Cancel implements CancelableReader.
func (r *InputReader) Cancel() {
	r.once.Do(func() { close(r.cancel) })
}

// Close cancels the reader, the shared stream stays open.
func (r *InputReader) Close() error {
	r.Cancel()
	return nil
}
