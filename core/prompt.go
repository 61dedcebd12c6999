package core

import (
	"strings"

	"github.com/fatih/color"
)

// DefaultPrompt is used when neither PS1 nor the configuration set one.
const DefaultPrompt = `\u@\h:\w\$ `

var (
	colorUserHost = color.New(color.FgGreen, color.Bold)
	colorDir      = color.New(color.FgBlue, color.Bold)
	colorError    = color.New(color.FgRed, color.Bold)
)

// forceColor returns a copy of c that colors output even when the process's
// stdout isn't a terminal, sessions decide for themselves.
func forceColor(c *color.Color) *color.Color {
	forced := *c
	forced.EnableColor()
	return &forced
}

// Prompt expands the PS1 style escapes in the prompt: \u is the user, \h the
// host name up to the first dot, \w the working directory with $HOME shown as
// ~ and \$ is # for root and $ for everyone else.
func (s *Shell) Prompt() string {
	prompt := s.Getenv(EnvPrompt)
	if prompt == "" {
		prompt = s.configuration.Prompt
	}
	if prompt == "" {
		prompt = DefaultPrompt
	}

	username := s.Getenv(EnvUser)
	host := s.Getenv(EnvHostname)
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}

	dir := s.dir
	if home := s.Getenv(EnvHome); home != "" && home != "/" {
		if dir == home {
			dir = "~"
		} else if strings.HasPrefix(dir, home+"/") {
			dir = "~" + strings.TrimPrefix(dir, home)
		}
	}

	sigil := "$"
	if username == "root" {
		sigil = "#"
	}

	if s.color {
		username = forceColor(colorUserHost).Sprint(username)
		host = forceColor(colorUserHost).Sprint(host)
		dir = forceColor(colorDir).Sprint(dir)
	}

	replacer := strings.NewReplacer(
		`\u`, username,
		`\h`, host,
		`\w`, dir,
		`\$`, sigil,
		`\\`, `\`,
	)
	return replacer.Replace(prompt)
}
