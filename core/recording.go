package core

import (
	"fmt"
	"log"
	"time"

	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/ttylog"
	"github.com/josephlewis42/pipesh/core/vos"
	"github.com/spf13/afero"
)

// SessionRecording is an asciicast file a session's console is copied to.
type SessionRecording struct {
	Name string

	file afero.File
	sink ttylog.Sink
}

// OpenSessionRecording creates a new recording in the configuration's
// session log directory and logs its name.
func OpenSessionRecording(configuration *config.Configuration, sessionLogger *logger.SessionLogger, header ttylog.AsciicastHeader) (*SessionRecording, error) {
	name := fmt.Sprintf("%s-%s.%s",
		time.Now().UTC().Format("20060102T150405Z"),
		sessionLogger.SessionID(),
		ttylog.AsciicastFileExt)

	fd, err := configuration.CreateSessionLog(name)
	if err != nil {
		return nil, err
	}

	if err := sessionLogger.Record(&logger.OpenTtyLog{Name: name}); err != nil {
		fd.Close()
		return nil, err
	}

	return &SessionRecording{
		Name: name,
		file: fd,
		sink: ttylog.NewAsciicastSink(fd, header),
	}, nil
}

// Wrap returns a VIO that copies everything passing through stdio to the
// recording. Recording errors go to appLog.
func (r *SessionRecording) Wrap(stdio vos.VIO, appLog *log.Logger) vos.VIO {
	recorder := ttylog.NewRecorder(stdio, r.sink)
	recorder.Logger = appLog
	return recorder
}

func (r *SessionRecording) Close() error {
	return r.file.Close()
}
