package hotkey

import (
	"testing"
	"time"
)

func waitToggle(t *testing.T, tg *Toggler) {
	t.Helper()
	select {
	case <-tg.Toggles():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for toggle")
	}
}

func expectNoToggle(t *testing.T, tg *Toggler, within time.Duration) {
	t.Helper()
	select {
	case <-tg.Toggles():
		t.Fatal("unexpected toggle")
	case <-time.After(within):
	}
}

func newTestToggler(t *testing.T, hold time.Duration) (*FakeKeys, *Toggler) {
	t.Helper()
	fk := NewFakeKeys()
	tg := NewToggler(fk, hold)
	if err := tg.Register(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(tg.Unregister)
	return fk, tg
}

func TestTapTogglesOnPress(t *testing.T) {
	fk, tg := newTestToggler(t, 200*time.Millisecond)

	fk.SimKeydown()
	waitToggle(t, tg)
	fk.SimKeyup() // release before threshold, still recording
	expectNoToggle(t, tg, 50*time.Millisecond)

	// second tap stops
	fk.SimKeydown()
	waitToggle(t, tg)
	fk.SimKeyup()
	expectNoToggle(t, tg, 50*time.Millisecond)
}

func TestHoldStopsOnRelease(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, tg := newTestToggler(t, threshold)

	fk.SimKeydown()
	waitToggle(t, tg)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitToggle(t, tg)
}

func TestMixedCycles(t *testing.T) {
	threshold := 50 * time.Millisecond
	fk, tg := newTestToggler(t, threshold)

	// Cycle 1: hold (push-to-talk)
	fk.SimKeydown()
	waitToggle(t, tg)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitToggle(t, tg)

	// Cycle 2: tap to start, tap to stop
	fk.SimKeydown()
	waitToggle(t, tg)
	fk.SimKeyup()
	time.Sleep(20 * time.Millisecond)
	fk.SimKeydown()
	waitToggle(t, tg)
	fk.SimKeyup()

	// Cycle 3: hold again
	time.Sleep(20 * time.Millisecond)
	fk.SimKeydown()
	waitToggle(t, tg)
	time.Sleep(threshold + 20*time.Millisecond)
	fk.SimKeyup()
	waitToggle(t, tg)
}

func TestUnregisterStops(t *testing.T) {
	fk, tg := newTestToggler(t, 50*time.Millisecond)
	tg.Unregister()

	fk.SimKeydown()
	expectNoToggle(t, tg, 50*time.Millisecond)
}

func TestFakeTrigger(t *testing.T) {
	ft := NewFakeTrigger()
	if err := ft.Register(); err != nil {
		t.Fatal(err)
	}
	ft.SimToggle()
	select {
	case <-ft.Toggles():
	case <-time.After(time.Second):
		t.Fatal("toggle not delivered")
	}
}
