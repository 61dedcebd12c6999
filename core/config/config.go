package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

var (
	//go:embed default/config.yaml
	defaultConfigData []byte
)

const (
	ConfigurationName  = "config.yaml"
	LogsDirName        = "session_logs"
	HostKeyName        = "host_key"
	AuthorizedKeysName = "authorized_keys"
	HistoryName        = "history"
	AppLogName         = "app.log"
	EventLogName       = "events.log"
)

const (
	ColorAlways = "always"
	ColorAuto   = "auto"
	ColorNever  = "never"
)

type Configuration struct {
	configFs afero.Fs
	// Directory the configuration was loaded from, empty if it's in memory.
	configurationDir string

	Prompt           string           `json:"prompt" validate:"required"`
	Color            string           `json:"color" validate:"oneof=always auto never"`
	History          History          `json:"history"`
	Pipeline         Pipeline         `json:"pipeline"`
	SessionRecording SessionRecording `json:"session_recording"`
	SSH              SSH              `json:"ssh"`
}

type History struct {
	Enabled bool `json:"enabled"`
	Limit   int  `json:"limit" validate:"gte=0"`
}

type Pipeline struct {
	WaitDelay Duration `json:"wait_delay"`
}

type SessionRecording struct {
	Enabled bool `json:"enabled"`
}

type SSH struct {
	Port int    `json:"port" validate:"gte=0,lte=65535"`
	Motd string `json:"motd"`
}

// Duration is a time.Duration written as a string like "1m30s".
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

func (c *Configuration) fs() afero.Fs {
	return c.configFs
}

// Dir returns the directory the configuration lives in, empty if the
// configuration only exists in memory.
func (c *Configuration) Dir() string {
	return c.configurationDir
}

// HistoryPath returns the path of the history file, empty if history isn't
// saved.
func (c *Configuration) HistoryPath() string {
	if !c.History.Enabled || c.configurationDir == "" {
		return ""
	}
	return filepath.Join(c.configurationDir, HistoryName)
}

// CreateSessionLog creates a new session recording.
func (c *Configuration) CreateSessionLog(name string) (afero.File, error) {
	toCreate := filepath.Join(LogsDirName, name)
	return c.fs().OpenFile(toCreate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
}

// HostKeyPem returns the bytes of the SSH host key.
func (c *Configuration) HostKeyPem() ([]byte, error) {
	return afero.ReadFile(c.fs(), HostKeyName)
}

// AuthorizedKeys returns the contents of the authorized_keys file.
func (c *Configuration) AuthorizedKeys() ([]byte, error) {
	return afero.ReadFile(c.fs(), AuthorizedKeysName)
}

// OpenAppLog opens the application log in an append only state.
func (c *Configuration) OpenAppLog() (afero.File, error) {
	return c.fs().OpenFile(AppLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

// OpenEventLog opens the event log in an append only state.
func (c *Configuration) OpenEventLog() (afero.File, error) {
	return c.fs().OpenFile(EventLogName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (c *Configuration) ReadEventLog() (afero.File, error) {
	return c.fs().OpenFile(EventLogName, os.O_RDONLY, 0600)
}

func defaultConfig() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// Default returns the built in configuration backed by an in-memory
// filesystem, nothing it writes is persisted.
func Default() *Configuration {
	out := defaultConfig()
	out.configFs = afero.NewMemMapFs()
	return out
}
