package cmd

import (
	"fmt"

	"github.com/josephlewis42/pipesh/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the shell event log.",
}

type eventUpdater interface {
	Update(le *logger.LogEntry)
}

// newReportCommand creates a command that feeds every event into the report
// newReport returns and prints it as YAML.
func newReportCommand(use, short string, newReport func() eventUpdater) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			config, err := loadConfig()
			if err != nil {
				return err
			}

			fd, err := config.ReadEventLog()
			if err != nil {
				return err
			}
			defer fd.Close()

			report := newReport()
			if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
				return err
			}

			out, err := yaml.Marshal(report)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(newReportCommand("report", "Show a summary of all events.", func() eventUpdater {
		return &logger.Report{}
	}))
	eventsCmd.AddCommand(newReportCommand("bugs", "Show events that point to bugs in the shell or its builtins.", func() eventUpdater {
		return logger.NewBugReport()
	}))
	eventsCmd.AddCommand(newReportCommand("sessions", "Show the lines run in each session.", func() eventUpdater {
		return &logger.InteractionReport{}
	}))
}
