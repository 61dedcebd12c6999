package commands

import "fmt"

// Pwd prints the session's working directory.
func Pwd(inv *Invocation) int {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the name of the current working directory.",
	}

	return cmd.Run(inv, func() int {
		fmt.Fprintln(inv.Stdout(), inv.Session.Getwd())
		return 0
	})
}

func init() {
	mustRegister("pwd", BuiltinFunc(Pwd))
}
