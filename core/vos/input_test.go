package vos

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputReader_cancelKeepsPendingInput(t *testing.T) {
	pr, pw := io.Pipe()
	input := NewSharedInput(pr)

	first := input.NewReader()
	done := make(chan error, 1)
	go func() {
		_, err := first.Read(make([]byte, 16))
		done <- err
	}()

	// Let the first reader block on the stream, then give up on it.
	time.Sleep(50 * time.Millisecond)
	first.Cancel()
	select {
	case err := <-done:
		assert.Equal(t, io.EOF, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled read didn't return")
	}

	// The read started for the first reader completes for the second.
	go pw.Write([]byte("ls\n"))

	second := input.NewReader()
	buf := make([]byte, 16)
	n, err := second.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ls\n", string(buf[:n]))

	n, err = first.Read(buf)
	assert.Equal(t, 0, n)
	assert.Equal(t, io.EOF, err)
}

func TestInputReader_errorsAreNotSticky(t *testing.T) {
	pr, pw := io.Pipe()
	input := NewSharedInput(pr)

	go func() {
		pw.Write([]byte("abc"))
		pw.CloseWithError(io.ErrUnexpectedEOF)
	}()

	got, err := io.ReadAll(input.NewReader())
	assert.Equal(t, io.ErrUnexpectedEOF, err)
	assert.Equal(t, "abc", string(got))

	// The stream is read again for the next reader.
	_, err = input.NewReader().Read(make([]byte, 1))
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestInputReader_sharedBetweenReaders(t *testing.T) {
	input := NewSharedInput(&chunkedReader{chunks: []string{"one two", "three"}})

	a, b := input.NewReader(), input.NewReader()

	buf := make([]byte, 3)
	n, err := a.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "one", string(buf[:n]))

	rest, err := io.ReadAll(b)
	require.NoError(t, err)
	assert.Equal(t, " twothree", string(rest))
}

func TestInputReader_emptyRead(t *testing.T) {
	r := NewSharedInput(&chunkedReader{}).NewReader()
	n, err := r.Read(nil)
	assert.Equal(t, 0, n)
	assert.NoError(t, err)

	assert.NoError(t, r.Close())
	_, err = r.Read(make([]byte, 1))
	assert.Equal(t, io.EOF, err)
}

// chunkedReader returns one chunk per read.
type chunkedReader struct {
	chunks []string
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks = c.chunks[1:]
	return n, nil
}
