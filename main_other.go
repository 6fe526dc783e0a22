//go:build !linux

package main

import (
	"runtime"

	"golang.design/x/hotkey/mainthread"
)

func init() {
	runtime.LockOSThread()
}

// The hotkey API must run on the process main thread everywhere
// except Linux, where the evdev reader has no such constraint.
func main() {
	mainthread.Init(run)
}
