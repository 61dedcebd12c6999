package commands

import "fmt"

// Type describes how each name would be interpreted as a command.
func Type(inv *Invocation) int {
	cmd := &SimpleCommand{
		Use:   "type NAME...",
		Short: "Display information about command type.",
	}

	return cmd.Run(inv, func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			if _, ok := inv.Session.Builtins().Get(name); ok {
				fmt.Fprintf(inv.Stdout(), "%s is a shell builtin\n", name)
				continue
			}

			if path, err := inv.Session.LookPath(name); err == nil {
				fmt.Fprintf(inv.Stdout(), "%s is %s\n", name, path)
				continue
			}

			fmt.Fprintf(inv.Stderr(), "%s: not found\n", name)
			status = 1
		}
		return status
	})
}

func init() {
	mustRegister("type", BuiltinFunc(Type))
}
