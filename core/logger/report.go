package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// ReadJSONLinesLog parses a newline delimited JSON log.
func ReadJSONLinesLog(r io.Reader, handler func(le *LogEntry)) error {
	decoder := json.NewDecoder(r)
	for decoder.More() {
		var rawEntry json.RawMessage
		if err := decoder.Decode(&rawEntry); err != nil {
			return err
		}

		var logEntry LogEntry
		if err := logEntry.UnmarshalJSON(rawEntry); err != nil {
			return err
		}

		handler(&logEntry)
	}
	return nil
}

func NewBugReport() *BugReport {
	return &BugReport{
		InvalidInvocations: NewPathCounter("command", "error"),
		UnknownCommands:    NewPathCounter("command", "status", "error"),
		LaunchErrors:       NewPathCounter("command", "status", "error"),
	}
}

// BugReport pulls events that are likely bugs in the shell or its builtins.
type BugReport struct {
	LogEntries int `json:"log_entries"`

	InvalidInvocations *PathCounter `json:"invalid_invocations"`
	UnknownCommands    *PathCounter `json:"unknown_commands"`
	LaunchErrors       *PathCounter `json:"launch_errors"`
	Panics             []string     `json:"panics"`
}

func (r *BugReport) Update(le *LogEntry) {
	r.LogEntries++

	switch le.EventType {
	case TypePanic:
		r.Panics = append(r.Panics, le.String("context"))
	case TypeUnknownCommand:
		r.UnknownCommands.Increment(firstOf(le.Strings("command")), strconv.Itoa(le.Int("status")), le.String("error"))
	case TypeLaunchError:
		r.LaunchErrors.Increment(firstOf(le.Strings("command")), strconv.Itoa(le.Int("status")), le.String("error"))
	case TypeInvalidInvocation:
		r.InvalidInvocations.Increment(firstOf(le.Strings("command")), le.String("error"))
	}
}

type InteractionReport struct {
	// Map of sessionID -> interactions
	interactions map[string]*InteractiveSession
}

type InteractiveSession struct {
	Login struct {
		Username    string `json:"username,omitempty"`
		Fingerprint string `json:"fingerprint,omitempty"`
		RemoteAddr  string `json:"remote_addr,omitempty"`
	} `json:"login"`
	Mode         string `json:"mode"`
	TTYLog       string `json:"tty_log,omitempty"`
	LogEntries   int    `json:"log_entries"`
	TerminalName string `json:"terminal_name,omitempty"`
	IsPty        bool   `json:"is_pty"`

	Commands     []string `json:"commands"`
	SyntaxErrors []string `json:"syntax_errors,omitempty"`
}

func (i *InteractiveSession) Update(le *LogEntry) {
	i.LogEntries++

	switch le.EventType {
	case TypeSessionStart:
		i.Mode = le.String("mode")
		if i.Login.Username == "" {
			i.Login.Username = le.String("user")
		}
	case TypeLogin:
		if !le.Bool("accepted") {
			break
		}
		i.Login.Username = le.String("username")
		i.Login.Fingerprint = le.String("fingerprint")
		i.Login.RemoteAddr = le.String("remote_addr")
	case TypeRunCommand:
		// Every stage is logged, only keep the line once.
		if le.Int("stage") == 0 {
			i.Commands = append(i.Commands, le.String("line"))
		}
	case TypeUnknownCommand:
		line := le.String("line")
		if n := len(i.Commands); n == 0 || i.Commands[n-1] != line {
			i.Commands = append(i.Commands, line)
		}
	case TypeSyntaxError:
		i.SyntaxErrors = append(i.SyntaxErrors, le.String("line"))
	case TypeTerminalUpdate:
		i.TerminalName = le.String("term")
		i.IsPty = le.Bool("is_pty")
	case TypeOpenTtyLog:
		i.TTYLog = le.String("name")
	}
}

func (i *InteractionReport) init() {
	if i.interactions == nil {
		i.interactions = make(map[string]*InteractiveSession)
	}
}

// MarshalJSON implements custom JSON marshaler.
func (i *InteractionReport) MarshalJSON() ([]byte, error) {
	i.init()

	return json.Marshal(i.interactions)
}

func (i *InteractionReport) Update(le *LogEntry) {
	i.init()

	if le.SessionID == "" {
		return
	}
	report, ok := i.interactions[le.SessionID]
	if !ok {
		report = &InteractiveSession{}
		i.interactions[le.SessionID] = report
	}

	report.Update(le)
}

// Report holds statistics about the logged events.
type Report struct {
	LogEntries     int        `json:"log_entries"`
	Sessions       int        `json:"sessions"`
	InvalidEntries StrCounter `json:"unknown_log_entries,omitempty"`

	Login             LoginReport             `json:"login_report"`
	RunCommand        RunCommandReport        `json:"run_command_report"`
	UnknownCommand    UnknownCommandReport    `json:"unknown_command_report"`
	SyntaxError       SyntaxErrorReport       `json:"syntax_error_report"`
	InvalidInvocation InvalidInvocationReport `json:"invalid_invocation_report"`
	Panic             PanicReport             `json:"panic_report"`
}

func (r *Report) Update(le *LogEntry) {
	r.LogEntries++

	switch le.EventType {
	case TypeSessionStart:
		r.Sessions++
	case TypeLogin:
		r.Login.update(le)
	case TypeRunCommand:
		r.RunCommand.update(le)
	case TypeUnknownCommand:
		r.UnknownCommand.update(le)
	case TypeSyntaxError:
		r.SyntaxError.update(le)
	case TypeInvalidInvocation:
		r.InvalidInvocation.update(le)
	case TypePanic:
		r.Panic.update(le)
	case TypeTerminalUpdate, TypeLaunchError, TypeRedirectionError, TypeOpenTtyLog:
		// Ignore
	default:
		r.InvalidEntries.Increment(string(le.EventType))
	}
}

type LoginReport struct {
	// List of usernames and their counts.
	Usernames StrCounter `json:"usernames"`
	// List of key fingerprints and their counts.
	Fingerprints StrCounter `json:"fingerprints"`
	// List of login attempt results and their counts.
	Results StrCounter `json:"results"`
}

func (r *LoginReport) update(le *LogEntry) {
	r.Usernames.Increment(le.String("username"))
	r.Fingerprints.Increment(le.String("fingerprint"))
	if le.Bool("accepted") {
		r.Results.Increment("accepted")
	} else {
		r.Results.Increment("rejected")
	}
}

type RunCommandReport struct {
	// Number of pipelines run.
	Pipelines int `json:"pipelines"`
	// Name of the resolved command
	ResolvedCommandPaths StrCounter `json:"resolved_command_paths"`
	// Name of the command
	CommandNames StrCounter `json:"command_names"`
	// Builtin or external
	Kinds StrCounter `json:"kinds"`
	// Exit statuses of the stages.
	Statuses StrCounter `json:"statuses"`
}

func (r *RunCommandReport) update(le *LogEntry) {
	if le.Int("stage") == 0 {
		r.Pipelines++
	}
	if path := le.String("resolved_path"); path != "" {
		r.ResolvedCommandPaths.Increment(path)
	}
	if command := le.Strings("command"); len(command) > 0 {
		r.CommandNames.Increment(command[0])
	}
	r.Kinds.Increment(le.String("kind"))
	r.Statuses.Increment(strconv.Itoa(le.Int("status")))
}

type UnknownCommandReport struct {
	CommandNames StrCounter `json:"command_names"`
}

func (r *UnknownCommandReport) update(le *LogEntry) {
	if command := le.Strings("command"); len(command) > 0 {
		r.CommandNames.Increment(command[0])
	}
}

type SyntaxErrorReport struct {
	Messages StrCounter `json:"messages"`
}

func (r *SyntaxErrorReport) update(le *LogEntry) {
	r.Messages.Increment(le.String("message"))
}

type InvalidInvocationReport struct {
	CommandNames StrCounter `json:"command_counts"`
}

func (r *InvalidInvocationReport) update(le *LogEntry) {
	if command := le.Strings("command"); len(command) > 0 {
		r.CommandNames.Increment(command[0])
	}
}

type PanicReport struct {
	Contexts []string `json:"contexts"`
}

func (r *PanicReport) update(le *LogEntry) {
	r.Contexts = append(r.Contexts, le.String("context"))
}

func firstOf(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// StrCounter counts the number of strings seen.
type StrCounter struct {
	internal map[string]int
}

// Increment adds one to the given key.
func (s *StrCounter) Increment(toAdd string) {
	if s.internal == nil {
		s.internal = make(map[string]int)
	}

	s.internal[toAdd]++
}

// Get returns the count for the key.
func (s *StrCounter) Get(key string) int {
	return s.internal[key]
}

// MarshalJSON implements custom JSON marshaler.
func (s StrCounter) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.internal)
}

func NewPathCounter(cols ...string) *PathCounter {
	return &PathCounter{
		cols:     cols,
		internal: make(map[string]int),
	}
}

// PathCounter counts the number of times a tuple of strings was seen.
type PathCounter struct {
	cols     []string
	internal map[string]int
}

// Increment adds one to the given key.
func (ctr *PathCounter) Increment(toAdd ...string) {
	if len(toAdd) != len(ctr.cols) {
		panic(fmt.Sprintf("wrong number of columns to add, got %d want %d", len(toAdd), len(ctr.cols)))
	}

	ctr.internal[toKey(toAdd...)]++
}

// MarshalJSON implements custom JSON marshaler.
func (ctr *PathCounter) MarshalJSON() ([]byte, error) {
	type Count struct {
		Count  int               `json:"count"`
		Fields map[string]string `json:"event"`
		Path   string            `json:"-"`
	}

	out := []Count{}
	for k, v := range ctr.internal {
		count := Count{
			Count:  v,
			Path:   k,
			Fields: make(map[string]string),
		}

		splitPath := fromKey(k)
		for colNum, colVal := range ctr.cols {
			count.Fields[colVal] = splitPath[colNum]
		}

		out = append(out, count)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Path < out[j].Path
		}
		return out[i].Count > out[j].Count
	})

	return json.Marshal(out)
}

func toKey(vals ...string) string {
	key, _ := json.Marshal(vals)
	return string(key)
}

func fromKey(key string) (out []string) {
	json.Unmarshal([]byte(key), &out)
	return
}
