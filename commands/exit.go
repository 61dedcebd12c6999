package commands

import (
	"fmt"
	"strconv"
)

// Exit asks the shell to quit. With no argument the status of the last
// pipeline is used.
func Exit(inv *Invocation) int {
	args := inv.Args
	code := inv.Session.LastStatus()

	switch len(args) {
	case 1:
	case 2:
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(inv.Stderr(), "%s: %s: numeric argument required\n", args[0], args[1])
			code = 2
			break
		}
		code = parsed & 0xff
	default:
		fmt.Fprintf(inv.Stderr(), "%s: too many arguments\n", args[0])
		return 1
	}

	inv.Session.Exit(code)
	return code
}

func init() {
	mustRegister("exit", BuiltinFunc(Exit))
}
