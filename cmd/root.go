package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/josephlewis42/pipesh/core"
	"github.com/josephlewis42/pipesh/core/config"
	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/josephlewis42/pipesh/core/ttylog"
	"github.com/josephlewis42/pipesh/core/vos"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	cfgPath     string
	commandLine string

	// exitStatus is the status of the last shell the root command ran.
	exitStatus int
)

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pipesh"
	}
	return filepath.Join(home, ".pipesh")
}

func loadConfig() (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)

	if errors.Is(err, fs.ErrNotExist) {
		log.Println("Couldn't load config: did you run init?")
	}

	return configuration, err
}

// loadConfigOrDefault falls back to the built in configuration, which keeps
// nothing on disk, if none was initialized.
func loadConfigOrDefault(stderr io.Writer) (*config.Configuration, error) {
	configuration, err := config.Load(cfgPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		fmt.Fprintf(stderr, "pipesh: no configuration in %q, using defaults; run `pipesh init` to keep history and logs\n", cfgPath)
		return config.Default(), nil
	case err != nil:
		return nil, err
	default:
		return configuration, nil
	}
}

// openLogs opens the application and event logs, falling back to stderr and
// discarding events if they can't be opened.
func openLogs(configuration *config.Configuration, stderr io.Writer) (appLog *log.Logger, events *logger.Logger, closer func()) {
	var closers []io.Closer
	closer = func() {
		for _, c := range closers {
			c.Close()
		}
	}

	appLog = log.New(stderr, "", log.LstdFlags)
	if fd, err := configuration.OpenAppLog(); err != nil {
		appLog.Printf("opening %s: %v", config.AppLogName, err)
	} else {
		closers = append(closers, fd)
		appLog = log.New(fd, "", log.LstdFlags)
	}

	events = logger.Discard()
	if fd, err := configuration.OpenEventLog(); err != nil {
		appLog.Printf("opening %s: %v", config.EventLogName, err)
	} else {
		closers = append(closers, fd)
		events = logger.NewJsonLinesLogRecorder(fd)
	}

	return appLog, events, closer
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pipesh",
	Short: "A shell with pipelines and output redirection.",
	Long: `Runs commands read from the terminal, from a script on stdin or from -c.

A line is one or more commands joined by '|'. The last command may redirect
its output with '>', '>>', '2>' or '2>>'.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfigOrDefault(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		appLog, events, closeLogs := openLogs(configuration, cmd.ErrOrStderr())
		defer closeLogs()

		exitStatus, err = runShell(cmd.Context(), configuration, appLog, events.NewSession())
		return err
	},
}

func runShell(ctx context.Context, configuration *config.Configuration, appLog *log.Logger, sessionLogger *logger.SessionLogger) (int, error) {
	interactive := commandLine == "" && isatty.IsTerminal(os.Stdin.Fd())

	stdio := vos.Stdio()
	if interactive && configuration.SessionRecording.Enabled {
		recording, err := core.OpenSessionRecording(configuration, sessionLogger, ttylog.DefaultAsciicastHeader())
		if err != nil {
			appLog.Printf("opening session recording: %v", err)
		} else {
			defer recording.Close()
			stdio = recording.Wrap(stdio, appLog)
		}
	}

	sh, err := core.NewShell(core.Options{
		Stdio:         stdio,
		Configuration: configuration,
		Events:        sessionLogger,
		AppLog:        appLog,
		Environ:       os.Environ(),
		Terminal: core.Terminal{
			IsTerminal: func() bool {
				return interactive && isatty.IsTerminal(os.Stdout.Fd())
			},
			Local: interactive,
		},
	})
	if err != nil {
		return 1, err
	}

	stop := sh.NotifyInterrupts(interactive)
	defer stop()

	switch {
	case commandLine != "":
		return sh.RunCommand(ctx, commandLine), nil
	case interactive:
		return sh.RunInteractive(ctx), nil
	default:
		return sh.RunScript(ctx, os.Stdin), nil
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
	os.Exit(exitStatus)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultConfigPath(), "configuration directory")
	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run a single line and exit")
}
