package commands

import (
	"fmt"
	"strconv"
)

// History displays or clears the session's history list.
func History(inv *Invocation) int {
	cmd := &SimpleCommand{
		Use:   "history [-c] [N]",
		Short: "Display the history list with line numbers, or the last N entries.",
	}

	opts := cmd.Flags()
	clear := opts.Bool('c', "clear the history by deleting all entries")

	return cmd.Run(inv, func() int {
		if *clear {
			inv.Session.ClearHistory()
			return 0
		}

		history := inv.Session.History()
		start := 0

		switch args := opts.Args(); len(args) {
		case 0:
		case 1:
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				fmt.Fprintf(inv.Stderr(), "%s: %s: numeric argument required\n", inv.Args[0], args[0])
				return 1
			}
			if n < len(history) {
				start = len(history) - n
			}
		default:
			fmt.Fprintf(inv.Stderr(), "%s: too many arguments\n", inv.Args[0])
			return 1
		}

		for i := start; i < len(history); i++ {
			fmt.Fprintf(inv.Stdout(), "%5d  %s\n", i+1, history[i])
		}
		return 0
	})
}

func init() {
	mustRegister("history", BuiltinFunc(History))
}
