package logger

import (
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// LogEntry is a single event along with the session it belongs to.
type LogEntry struct {
	TimestampMicros int64
	SessionID       string
	EventType       EventType
	Event           *structpb.Struct
}

const (
	keyTimestamp = "timestamp_micros"
	keySessionID = "session_id"
	keyEventType = "event_type"
	keyEvent     = "event"
)

// NewLogEntry creates an entry for the event stamped with the current time.
func NewLogEntry(sessionID string, event Event) (*LogEntry, error) {
	payload, err := structpb.NewStruct(event.Fields())
	if err != nil {
		return nil, fmt.Errorf("encoding %s event: %w", event.Type(), err)
	}

	return &LogEntry{
		TimestampMicros: time.Now().UnixMicro(),
		SessionID:       sessionID,
		EventType:       event.Type(),
		Event:           payload,
	}, nil
}

// MarshalJSON implements json.Marshaler using the protobuf JSON encoding.
func (le *LogEntry) MarshalJSON() ([]byte, error) {
	event := le.Event
	if event == nil {
		event = &structpb.Struct{}
	}

	out := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			keyTimestamp: structpb.NewNumberValue(float64(le.TimestampMicros)),
			keySessionID: structpb.NewStringValue(le.SessionID),
			keyEventType: structpb.NewStringValue(string(le.EventType)),
			keyEvent:     structpb.NewStructValue(event),
		},
	}
	return protojson.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler using the protobuf JSON encoding.
func (le *LogEntry) UnmarshalJSON(b []byte) error {
	var in structpb.Struct
	if err := protojson.Unmarshal(b, &in); err != nil {
		return err
	}

	fields := in.GetFields()
	le.TimestampMicros = int64(fields[keyTimestamp].GetNumberValue())
	le.SessionID = fields[keySessionID].GetStringValue()
	le.EventType = EventType(fields[keyEventType].GetStringValue())
	le.Event = fields[keyEvent].GetStructValue()
	if le.Event == nil {
		le.Event = &structpb.Struct{}
	}
	return nil
}

// Time returns the time the entry was created.
func (le *LogEntry) Time() time.Time {
	return time.UnixMicro(le.TimestampMicros)
}

// String returns the string field of the event, empty if not set.
func (le *LogEntry) String(key string) string {
	return le.Event.GetFields()[key].GetStringValue()
}

// Int returns the numeric field of the event, zero if not set.
func (le *LogEntry) Int(key string) int {
	return int(le.Event.GetFields()[key].GetNumberValue())
}

// Bool returns the boolean field of the event.
func (le *LogEntry) Bool(key string) bool {
	return le.Event.GetFields()[key].GetBoolValue()
}

// Strings returns the list field of the event.
func (le *LogEntry) Strings(key string) []string {
	var out []string
	for _, v := range le.Event.GetFields()[key].GetListValue().GetValues() {
		out = append(out, v.GetStringValue())
	}
	return out
}

// LogRecorder is a callback that stores events in an external datastore.
type LogRecorder func(le *LogEntry) error

// Logger captures session events.
type Logger struct {
	Record LogRecorder
}

// NewJsonLinesLogRecorder creates a Logger that exports logs in newline
// delimited JSON object format. It's safe for concurrent use.
func NewJsonLinesLogRecorder(w io.Writer) *Logger {
	var mu sync.Mutex
	return &Logger{
		Record: func(le *LogEntry) error {
			entry, err := le.MarshalJSON()
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// Discard returns a Logger that drops every event.
func Discard() *Logger {
	return &Logger{
		Record: func(*LogEntry) error { return nil },
	}
}

func (l *Logger) recordEvent(sessionID string, event Event) error {
	le, err := NewLogEntry(sessionID, event)
	if err != nil {
		return err
	}
	return l.Record(le)
}

// NewSession creates a logger with attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// Sessionless creates a logger for events outside of any session.
func (l *Logger) Sessionless() *SessionLogger {
	return &SessionLogger{Logger: l, sessionID: ""}
}

// SessionLogger logs messages with a shared session ID.
type SessionLogger struct {
	*Logger
	sessionID string
}

// SessionID returns the ID attached to every event.
func (l *SessionLogger) SessionID() string {
	return l.sessionID
}

func (l *SessionLogger) Record(event Event) error {
	return l.recordEvent(l.sessionID, event)
}
