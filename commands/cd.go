package commands

import (
	"fmt"
	"path"
	"strings"

	"github.com/josephlewis42/pipesh/core/vos"
)

const (
	EnvHome   = "HOME"
	EnvOldPwd = "OLDPWD"
)

// Cd is the cd shell builtin.
func Cd(inv *Invocation) int {
	args := inv.Args
	s := inv.Session

	var dir string
	printDir := false
	switch len(args) {
	case 1:
		dir = "~"
	case 2:
		dir = args[1]
	default:
		fmt.Fprintf(inv.Stderr(), "%s: too many arguments\n", args[0])
		return 1
	}

	switch {
	case dir == "-":
		dir = s.Getenv(EnvOldPwd)
		if dir == "" {
			fmt.Fprintf(inv.Stderr(), "%s: OLDPWD not set\n", args[0])
			return 1
		}
		printDir = true
	case dir == "~":
		dir = s.Getenv(EnvHome)
	case strings.HasPrefix(dir, "~/"):
		dir = path.Join(s.Getenv(EnvHome), dir[2:])
	}

	if dir == "" {
		fmt.Fprintf(inv.Stderr(), "%s: HOME not set\n", args[0])
		return 1
	}

	if err := s.Chdir(dir); err != nil {
		fmt.Fprintf(inv.Stderr(), "%s: %s: %s\n", args[0], dir, vos.DescribeError(err))
		return 1
	}

	if printDir {
		fmt.Fprintln(inv.Stdout(), s.Getwd())
	}
	return 0
}

func init() {
	mustRegister("cd", BuiltinFunc(Cd))
}
