//go:build windows

package doctor

import (
	"os"
	"os/signal"
)

func resetTerminal() {}

func setupInterruptHandler() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		println("\ninterrupted")
		os.Exit(1)
	}()
}
