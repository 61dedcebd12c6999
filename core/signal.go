package core

import (
	"os"
	"os/signal"
)

// NotifyInterrupts cancels the running pipeline when the process receives
// SIGINT. Children in the terminal's process group get the signal too. An
// interrupt with no pipeline running stops a non-interactive shell with status
// 130. Call stop to restore the default behavior.
func (s *Shell) NotifyInterrupts(interactive bool) (stop func()) {
	signals := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(signals, os.Interrupt)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-signals:
				if !s.Interrupt() && !interactive {
					s.Exit(130)
				}
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}
