package commands

import "fmt"

// Help lists the builtins.
func Help(inv *Invocation) int {
	cmd := &SimpleCommand{
		Use:   "help [--color=WHEN]",
		Short: "Display information about builtin commands.",
	}

	var printer ColorPrinter
	printer.Init(cmd.Flags(), inv.Stdout())

	return cmd.Run(inv, func() int {
		w := inv.Stdout()
		fmt.Fprintln(w, "pipesh, a shell with pipes and redirection.")
		fmt.Fprintln(w, "These shell commands are defined internally. Type `help' to see this list.")
		fmt.Fprintln(w, "Type `NAME --help' to find out more about the command `NAME'.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Builtins:")

		for _, name := range inv.Session.Builtins().ListNames() {
			fmt.Fprintln(w, "  "+printer.Sprintf(ColorBoldBlue, "%s", name))
		}
		return 0
	})
}

func init() {
	mustRegister("help", BuiltinFunc(Help))
}
