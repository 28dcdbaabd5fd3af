//go:build windows

package doctor

import (
	"os"

	"sunnyside/shutdown"
)

func resetTerminal() {
	// Not needed on Windows
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		println("\nInterrupted")
		os.Exit(1)
	}()
}
