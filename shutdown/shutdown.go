// Package shutdown delivers the termination signals parla reacts to.
package shutdown

import "os"

// Signals returns a channel that receives Interrupt, plus SIGTERM where
// the platform has one, so the main loop can flush logs before exiting.
func Signals() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	notify(ch)
	return ch
}
