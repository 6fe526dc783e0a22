package hotkey

import (
	"sync"
	"time"
)

// DefaultHoldThreshold separates a tap from a held press.
const DefaultHoldThreshold = 500 * time.Millisecond

// Toggler converts raw press/release pairs into toggle events. It
// tracks press parity so that a press which begins a recording can
// arm release-to-stop for push-to-talk, while the release after a
// stopping tap is ignored.
type Toggler struct {
	keys    Keys
	hold    time.Duration
	toggles chan struct{}
	stop    chan struct{}
	once    sync.Once
}

func NewToggler(keys Keys, hold time.Duration) *Toggler {
	if hold <= 0 {
		hold = DefaultHoldThreshold
	}
	return &Toggler{
		keys:    keys,
		hold:    hold,
		toggles: make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

func (t *Toggler) Register() error {
	if err := t.keys.Register(); err != nil {
		return err
	}
	go t.run()
	return nil
}

func (t *Toggler) Unregister() {
	t.once.Do(func() {
		close(t.stop)
		t.keys.Unregister()
	})
}

func (t *Toggler) Toggles() <-chan struct{} { return t.toggles }

func (t *Toggler) run() {
	// on tracks press parity, not the session's actual state. A
	// silence auto-stop can make them diverge; the only effect is
	// that the release of the following press does nothing, which is
	// harmless.
	on := false
	for {
		select {
		case <-t.stop:
			return
		case <-t.keys.Keydown():
		}

		t.emit()
		if on {
			// Stopping tap; swallow the matching release.
			on = false
			select {
			case <-t.stop:
				return
			case <-t.keys.Keyup():
			}
			continue
		}
		on = true

		pressedAt := time.Now()
		select {
		case <-t.stop:
			return
		case <-t.keys.Keyup():
		}
		if time.Since(pressedAt) >= t.hold {
			// Held past the threshold: push-to-talk, stop on release.
			t.emit()
			on = false
		}
	}
}

func (t *Toggler) emit() {
	select {
	case t.toggles <- struct{}{}:
	default:
	}
}
