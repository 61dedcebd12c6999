package logger

// EventType names the kind of event held by a LogEntry.
type EventType string

const (
	TypeSessionStart      EventType = "session_start"
	TypeLogin             EventType = "login"
	TypeTerminalUpdate    EventType = "terminal_update"
	TypeRunCommand        EventType = "run_command"
	TypeUnknownCommand    EventType = "unknown_command"
	TypeSyntaxError       EventType = "syntax_error"
	TypeLaunchError       EventType = "launch_error"
	TypeRedirectionError  EventType = "redirection_error"
	TypePanic             EventType = "panic"
	TypeInvalidInvocation EventType = "invalid_invocation"
	TypeOpenTtyLog        EventType = "open_tty_log"
)

// Event is something that happened in a session.
type Event interface {
	Type() EventType
	// Fields returns the event's payload, values must be representable by
	// structpb.NewValue.
	Fields() map[string]interface{}
}

func toList(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// SessionStart is logged when a shell starts.
type SessionStart struct {
	// Mode is one of interactive, script, command or ssh.
	Mode string
	User string
	Dir  string
}

func (e *SessionStart) Type() EventType { return TypeSessionStart }

func (e *SessionStart) Fields() map[string]interface{} {
	return map[string]interface{}{
		"mode": e.Mode,
		"user": e.User,
		"dir":  e.Dir,
	}
}

// Login is logged for every SSH authentication attempt.
type Login struct {
	Username   string
	RemoteAddr string
	// Fingerprint is the SHA256 fingerprint of the offered public key.
	Fingerprint string
	Accepted    bool
}

func (e *Login) Type() EventType { return TypeLogin }

func (e *Login) Fields() map[string]interface{} {
	return map[string]interface{}{
		"username":    e.Username,
		"remote_addr": e.RemoteAddr,
		"fingerprint": e.Fingerprint,
		"accepted":    e.Accepted,
	}
}

// TerminalUpdate is logged when an SSH client reports its terminal.
type TerminalUpdate struct {
	Term   string
	IsPty  bool
	Width  int
	Height int
}

func (e *TerminalUpdate) Type() EventType { return TypeTerminalUpdate }

func (e *TerminalUpdate) Fields() map[string]interface{} {
	return map[string]interface{}{
		"term":   e.Term,
		"is_pty": e.IsPty,
		"width":  e.Width,
		"height": e.Height,
	}
}

// RunCommand is logged once per stage of a pipeline that was dispatched.
type RunCommand struct {
	Line string
	// Stage is the index of the stage in the pipeline.
	Stage   int
	Command []string
	// Kind is builtin or external.
	Kind string
	// ResolvedPath is the executable run for external stages.
	ResolvedPath string
	Redirect     string
	// Status is the exit status, -1 if the stage never started.
	Status int
}

func (e *RunCommand) Type() EventType { return TypeRunCommand }

func (e *RunCommand) Fields() map[string]interface{} {
	return map[string]interface{}{
		"line":          e.Line,
		"stage":         e.Stage,
		"command":       toList(e.Command),
		"kind":          e.Kind,
		"resolved_path": e.ResolvedPath,
		"redirect":      e.Redirect,
		"status":        e.Status,
	}
}

// UnknownCommand is logged for every stage name that couldn't be resolved.
type UnknownCommand struct {
	Line    string
	Command []string
	Status  int
	Error   string
}

func (e *UnknownCommand) Type() EventType { return TypeUnknownCommand }

func (e *UnknownCommand) Fields() map[string]interface{} {
	return map[string]interface{}{
		"line":    e.Line,
		"command": toList(e.Command),
		"status":  e.Status,
		"error":   e.Error,
	}
}

// SyntaxError is logged for lines that couldn't be parsed.
type SyntaxError struct {
	Line    string
	Offset  int
	Message string
}

func (e *SyntaxError) Type() EventType { return TypeSyntaxError }

func (e *SyntaxError) Fields() map[string]interface{} {
	return map[string]interface{}{
		"line":    e.Line,
		"offset":  e.Offset,
		"message": e.Message,
	}
}

// LaunchError is logged when an executable couldn't be started.
type LaunchError struct {
	Command []string
	Path    string
	Status  int
	Error   string
}

func (e *LaunchError) Type() EventType { return TypeLaunchError }

func (e *LaunchError) Fields() map[string]interface{} {
	return map[string]interface{}{
		"command": toList(e.Command),
		"path":    e.Path,
		"status":  e.Status,
		"error":   e.Error,
	}
}

// RedirectionError is logged when a redirection target couldn't be written.
type RedirectionError struct {
	Command  []string
	Redirect string
	Error    string
}

func (e *RedirectionError) Type() EventType { return TypeRedirectionError }

func (e *RedirectionError) Fields() map[string]interface{} {
	return map[string]interface{}{
		"command":  toList(e.Command),
		"redirect": e.Redirect,
		"error":    e.Error,
	}
}

// Panic is logged when a builtin panics.
type Panic struct {
	Context    string
	Stacktrace string
}

func (e *Panic) Type() EventType { return TypePanic }

func (e *Panic) Fields() map[string]interface{} {
	return map[string]interface{}{
		"context":    e.Context,
		"stacktrace": e.Stacktrace,
	}
}

// InvalidInvocation is logged when a builtin is called with bad flags.
type InvalidInvocation struct {
	Command []string
	Error   string
}

func (e *InvalidInvocation) Type() EventType { return TypeInvalidInvocation }

func (e *InvalidInvocation) Fields() map[string]interface{} {
	return map[string]interface{}{
		"command": toList(e.Command),
		"error":   e.Error,
	}
}

// OpenTtyLog is logged when a session recording is opened.
type OpenTtyLog struct {
	Name string
}

func (e *OpenTtyLog) Type() EventType { return TypeOpenTtyLog }

func (e *OpenTtyLog) Fields() map[string]interface{} {
	return map[string]interface{}{
		"name": e.Name,
	}
}
