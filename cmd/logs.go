package cmd

import (
	"os"
	"time"

	"github.com/josephlewis42/pipesh/core/ttylog"
	"github.com/spf13/cobra"
)

var (
	fixNewlines   bool
	idleTimeLimit time.Duration
	rateLimit     int64
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"log"},
	Short:   "Explore recorded sessions.",
}

// playCommand represents the play command
var playCommand = &cobra.Command{
	Use:   "play FILE.cast",
	Short: "Replay a recorded session in the terminal.",
	Long:  `Plays a recorded session back to the current terminal in real time.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fd, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		out := ttylog.NewRateLimitedWriter(cmd.OutOrStdout(), rateLimit)
		sink := ttylog.NewClientOutput(out)
		sink = ttylog.NewRealTimePlayback(idleTimeLimit, sink)
		return ttylog.Replay(ttylog.NewAsciicastSource(fd), applyMiddleware(sink))
	},
}

// catCommand represents the cat command
var catCommand = &cobra.Command{
	Use:   "cat FILE.cast",
	Short: "Print the full output of a recorded session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		fd, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		sink := ttylog.NewClientOutput(cmd.OutOrStdout())

		return ttylog.Replay(ttylog.NewAsciicastSource(fd), applyMiddleware(sink))
	},
}

func applyMiddleware(sink ttylog.Sink) ttylog.Sink {
	if fixNewlines {
		sink = ttylog.NewCRLFAdapter(sink)
	}

	return sink
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(playCommand)
	logsCmd.AddCommand(catCommand)

	for _, cmd := range []*cobra.Command{playCommand, catCommand} {
		cmd.Flags().BoolVar(&fixNewlines, "fix-newlines", false, "Output \\r\\n line endings, for recordings made without a pty.")
	}

	// cat doesn't allow idle time
	for _, cmd := range []*cobra.Command{playCommand} {
		cmd.Flags().DurationVarP(&idleTimeLimit, "idle-time-limit", "i", 3*time.Second, "Maximum time output can be idle. (e.g. 3s, 2m, 100ms)")
		cmd.Flags().Int64Var(&rateLimit, "rate", 0, "Maximum output rate in bytes per second, 0 for no limit.")
	}
}
