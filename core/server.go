package core

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/gliderlabs/ssh"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/ttylog"
	"github.com/josephlewis42/pipesh/core/vos"
	gossh "golang.org/x/crypto/ssh"
)

type sshContextKey struct {
	name string
}

var (
	// ContextAuthFingerprint holds the fingerprint of the public key the client
	// authenticated with.
	ContextAuthFingerprint = sshContextKey{"auth-fingerprint"}
)

// Server serves shell sessions over SSH. Each session gets its own Shell so
// sessions never share a working directory or environment.
type Server struct {
	configuration  *config.Configuration
	logger         *logger.Logger
	appLog         *log.Logger
	authorizedKeys []ssh.PublicKey
	sshServer      *ssh.Server

	// environ seeds every session's environment.
	environ []string
}

// NewServer creates a server for the configuration. Only keys in the
// configuration's authorized_keys file may log in.
func NewServer(configuration *config.Configuration, events *logger.Logger, appLog *log.Logger) (*Server, error) {
	authorizedKeysData, err := configuration.AuthorizedKeys()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", config.AuthorizedKeysName, err)
	}
	authorizedKeys, err := parseAuthorizedKeys(authorizedKeysData)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", config.AuthorizedKeysName, err)
	}
	if len(authorizedKeys) == 0 {
		appLog.Printf("no keys in %s, nobody can log in", config.AuthorizedKeysName)
	}

	hostKey, err := configuration.HostKeyPem()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", config.HostKeyName, err)
	}

	server := &Server{
		configuration:  configuration,
		logger:         events,
		appLog:         appLog,
		authorizedKeys: authorizedKeys,
		environ:        os.Environ(),
	}

	server.sshServer = &ssh.Server{
		Addr: fmt.Sprintf(":%d", configuration.SSH.Port),
		Handler: func(s ssh.Session) {
			if err := server.HandleConnection(s); err != nil {
				appLog.Printf("session from %s: %v", s.RemoteAddr(), err)
			}
		},
		PublicKeyHandler: server.authorize,
	}
	if err := server.sshServer.SetOption(ssh.HostKeyPEM(hostKey)); err != nil {
		return nil, fmt.Errorf("loading %s: %w", config.HostKeyName, err)
	}

	return server, nil
}

func parseAuthorizedKeys(data []byte) ([]ssh.PublicKey, error) {
	var keys []ssh.PublicKey
	for rest := data; len(bytes.TrimSpace(rest)) > 0; {
		key, _, _, remaining, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		rest = remaining
	}
	return keys, nil
}

func (s *Server) authorize(ctx ssh.Context, key ssh.PublicKey) bool {
	fingerprint := gossh.FingerprintSHA256(key)
	ctx.SetValue(ContextAuthFingerprint, fingerprint)

	for _, authorized := range s.authorizedKeys {
		if ssh.KeysEqual(key, authorized) {
			return true
		}
	}

	s.logger.Sessionless().Record(&logger.Login{
		Username:    ctx.User(),
		RemoteAddr:  ctx.RemoteAddr().String(),
		Fingerprint: fingerprint,
		Accepted:    false,
	})
	return false
}

// HandleConnection runs a shell for the session, or a single command if the
// client sent one.
func (s *Server) HandleConnection(sess ssh.Session) error {
	sessionLogger := s.logger.NewSession()

	fingerprint, _ := sess.Context().Value(ContextAuthFingerprint).(string)
	sessionLogger.Record(&logger.Login{
		Username:    sess.User(),
		RemoteAddr:  sess.RemoteAddr().String(),
		Fingerprint: fingerprint,
		Accepted:    true,
	})

	ptyInfo, winch, isPty := sess.Pty()
	sessionLogger.Record(&logger.TerminalUpdate{
		Term:   ptyInfo.Term,
		IsPty:  isPty,
		Width:  ptyInfo.Window.Width,
		Height: ptyInfo.Window.Height,
	})

	// Watch for window changes.
	var windowMu sync.Mutex
	window := ptyInfo.Window
	go func() {
		for {
			select {
			case <-sess.Context().Done():
				return
			case w, ok := <-winch:
				if !ok {
					return
				}
				windowMu.Lock()
				window = w
				windowMu.Unlock()
			}
		}
	}()

	var stdio vos.VIO = vos.NewVIOAdapter(sess, sess, sess.Stderr())
	if isPty {
		// A pty merges the streams on the client anyway. The client's
		// terminal is raw, so line feeds need a carriage return.
		out := ttylog.NewCRLFWriter(sess)
		stdio = vos.NewVIOAdapter(sess, out, out)
	}

	if s.configuration.SessionRecording.Enabled {
		header := ttylog.DefaultAsciicastHeader()
		if ptyInfo.Window.Width > 0 && ptyInfo.Window.Height > 0 {
			header.Width = ptyInfo.Window.Width
			header.Height = ptyInfo.Window.Height
		}
		if ptyInfo.Term != "" {
			header.Env["TERM"] = ptyInfo.Term
		}

		recording, err := OpenSessionRecording(s.configuration, sessionLogger, header)
		if err != nil {
			s.appLog.Printf("opening session recording: %v", err)
		} else {
			defer recording.Close()
			stdio = recording.Wrap(stdio, s.appLog)
		}
	}

	environ := append(append([]string(nil), s.environ...), sess.Environ()...)
	environ = append(environ, EnvUser+"="+sess.User())
	if isPty && ptyInfo.Term != "" {
		environ = append(environ, "TERM="+ptyInfo.Term)
	}

	sh, err := NewShell(Options{
		Stdio:         stdio,
		Configuration: s.configuration,
		Events:        sessionLogger,
		AppLog:        s.appLog,
		Environ:       environ,
		Dir:           os.Getenv(EnvHome),
		Terminal: Terminal{
			IsTerminal: func() bool { return isPty },
			Width: func() int {
				windowMu.Lock()
				defer windowMu.Unlock()
				return window.Width
			},
		},
	})
	if err != nil {
		fmt.Fprintf(sess.Stderr(), "pipesh: %v\n", err)
		sess.Exit(1)
		return err
	}

	// ssh.Context is cancelled when the client disconnects.
	ctx := sess.Context()
	go s.forwardSignals(ctx, sess, sh)

	var status int
	if line := sess.RawCommand(); line != "" {
		status = sh.RunCommand(ctx, line)
	} else {
		if motd := s.configuration.SSH.Motd; motd != "" {
			fmt.Fprintln(stdio.Stdout(), motd)
		}
		status = sh.RunInteractive(ctx)
	}

	return sess.Exit(status)
}

// forwardSignals cancels the running pipeline when the client sends SIGINT.
func (s *Server) forwardSignals(ctx context.Context, sess ssh.Session, sh *Shell) {
	signals := make(chan ssh.Signal, 1)
	sess.Signals(signals)
	defer sess.Signals(nil)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-signals:
			if sig == ssh.SIGINT {
				sh.Interrupt()
			}
		}
	}
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.sshServer.Addr
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.sshServer.Serve(l)
}

func (s *Server) ListenAndServe() error {
	s.appLog.Printf("Starting SSH server on %s", s.sshServer.Addr)
	return s.sshServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.sshServer.Shutdown(ctx)
}
