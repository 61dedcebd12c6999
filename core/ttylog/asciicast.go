package ttylog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// AsciicastFileExt holds the suggested file extension for asciicast files.
const AsciicastFileExt = "cast"

// AsciicastHeader is the first line of an asciicast v2 file.
//
// See: https://github.com/asciinema/asciinema/blob/develop/doc/asciicast-v2.md
type AsciicastHeader struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp,omitempty"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// DefaultAsciicastHeader works for displaying most sessions.
func DefaultAsciicastHeader() AsciicastHeader {
	return AsciicastHeader{
		Version: 2,
		Width:   80,
		Height:  24,
		Title:   "pipesh session",
		Env: map[string]string{
			"TERM":  "xterm-256color",
			"SHELL": "pipesh",
		},
	}
}

func writeJSONLine(w io.Writer, v interface{}) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", line)
	return err
}

// NewAsciicastSink creates a Sink that writes asciicast v2. The header is
// written with the first entry and timestamped with it.
func NewAsciicastSink(w io.Writer, header AsciicastHeader) Sink {
	var startMicros int64
	wroteHeader := false

	return func(e *Entry) error {
		if !wroteHeader {
			startMicros = e.TimestampMicros
			header.Timestamp = time.UnixMicro(startMicros).Unix()
			if err := writeJSONLine(w, &header); err != nil {
				return err
			}
			wroteHeader = true
		}

		// Asciicast has no stderr so it's collapsed into stdout.
		code := "o"
		if e.Stream == Stdin {
			code = "i"
		}

		return writeJSONLine(w, &asciicastEvent{
			TimeSeconds: microsecondsToSeconds(e.TimestampMicros - startMicros),
			Code:        code,
			Data:        string(e.Data),
		})
	}
}

// AsciicastSource reads entries from an asciicast v2 file.
type AsciicastSource struct {
	r          *bufio.Reader
	header     AsciicastHeader
	readHeader bool
}

var _ Source = (*AsciicastSource)(nil)

func NewAsciicastSource(r io.Reader) *AsciicastSource {
	return &AsciicastSource{r: bufio.NewReader(r)}
}

// Header returns the recording's header, reading it if necessary.
func (s *AsciicastSource) Header() (AsciicastHeader, error) {
	if s.readHeader {
		return s.header, nil
	}

	line, err := s.r.ReadBytes('\n')
	if err != nil && (err != io.EOF || len(line) == 0) {
		return s.header, fmt.Errorf("reading header: %w", err)
	}
	if err := json.Unmarshal(line, &s.header); err != nil {
		return s.header, fmt.Errorf("parsing header: %w", err)
	}
	if s.header.Version != 2 {
		return s.header, fmt.Errorf("unsupported asciicast version %d", s.header.Version)
	}
	s.readHeader = true
	return s.header, nil
}

// Next gets the next entry, it returns io.EOF if there are no more. Times are
// relative to the start of the recording.
func (s *AsciicastSource) Next() (*Entry, error) {
	if _, err := s.Header(); err != nil {
		return nil, err
	}

	for {
		line, err := s.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			return nil, err
		}

		if len(line) == 1 {
			// Skip blank lines
			continue
		}

		var event asciicastEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, err
		}

		var stream Stream
		switch event.Code {
		case "o":
			stream = Stdout
		case "i":
			stream = Stdin
		default:
			// Markers and resizes don't carry I/O.
			continue
		}

		return &Entry{
			TimestampMicros: secondsToMicroseconds(event.TimeSeconds),
			Stream:          stream,
			Data:            []byte(event.Data),
		}, nil
	}
}

// asciicastEvent is encoded as a three element array: [time, code, data].
type asciicastEvent struct {
	TimeSeconds float64
	Code        string
	Data        string
}

func (e *asciicastEvent) UnmarshalJSON(data []byte) error {
	var v []interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if count := len(v); count != 3 {
		return fmt.Errorf("malformed line, expected 3 entries got %d", count)
	}

	var timeOk, codeOk, dataOk bool
	e.TimeSeconds, timeOk = v[0].(float64)
	e.Code, codeOk = v[1].(string)
	e.Data, dataOk = v[2].(string)

	if !timeOk || !codeOk || !dataOk {
		return fmt.Errorf("malformed data in line: %q", v)
	}

	return nil
}

func (e *asciicastEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.TimeSeconds, e.Code, e.Data})
}

func microsecondsToSeconds(microseconds int64) (seconds float64) {
	return (float64(microseconds) * float64(time.Microsecond)) / float64(time.Second)
}

func secondsToMicroseconds(seconds float64) (microseconds int64) {
	return int64(float64(seconds)*float64(time.Second)) / int64(time.Microsecond)
}
