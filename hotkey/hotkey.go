// Package hotkey turns the global key combination (Ctrl+Shift+Space)
// into toggle events for the recording session. A tap toggles; a
// press held past the hold threshold becomes push-to-talk, toggling
// again on release.
package hotkey

import "time"

// Trigger is the abstract toggle source consumed by the main loop.
// Each event on Toggles means start-if-idle / stop-if-recording. At
// most one toggle is ever pending; extra presses during a state
// transition are dropped, not queued.
type Trigger interface {
	Register() error
	Unregister()
	Toggles() <-chan struct{}
}

// Keys is the raw platform key source underneath a Toggler. Keydown
// fires when the full combination is pressed, Keyup when the
// triggering key is released.
type Keys interface {
	Register() error
	Unregister()
	Keydown() <-chan struct{}
	Keyup() <-chan struct{}
}

// New returns the platform trigger with tap and hold behavior. A
// non-positive hold falls back to DefaultHoldThreshold.
func New(hold time.Duration) Trigger {
	return NewToggler(newKeys(), hold)
}
