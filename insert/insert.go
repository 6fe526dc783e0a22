// Package insert delivers final transcripts into the focused
// application. Paste mode round-trips through the system clipboard and
// fires a synthetic paste keystroke; type mode emits the text
// key-by-key; clipboard mode only copies.
package insert

import (
	"fmt"
	"time"

	cb "github.com/atotto/clipboard"
)

// Mode selects how Deliver gets text into the focused window.
type Mode string

const (
	ModePaste     Mode = "paste"
	ModeType      Mode = "type"
	ModeClipboard Mode = "clipboard"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModePaste, ModeType, ModeClipboard:
		return Mode(s), nil
	case "":
		return ModePaste, nil
	}
	return "", fmt.Errorf("unknown insert mode %q (paste, type, clipboard)", s)
}

const (
	// Paste replaces the clipboard; the previous content comes back
	// after the target application had time to read the selection.
	restoreDelay = 600 * time.Millisecond

	// Typing starts after a short delay so the hotkey modifiers are
	// released, then paces keystrokes for slow widgets.
	typeLead  = 200 * time.Millisecond
	typeDelay = 10 * time.Millisecond
)

// Inserter owns one insertion mode. The function hooks default to the
// platform implementations and are swapped out in tests.
type Inserter struct {
	mode Mode

	restoreAfter time.Duration

	copyFn  func(string) error
	readFn  func() (string, error)
	pasteFn func() error
	typeFn  func(string) error
}

func New(mode Mode) *Inserter {
	return &Inserter{
		mode:         mode,
		restoreAfter: restoreDelay,
		copyFn:       cb.WriteAll,
		readFn:       cb.ReadAll,
		pasteFn:      pasteKeys,
		typeFn:       typeKeys,
	}
}

func (ins *Inserter) Mode() Mode { return ins.mode }

// Prepare opens the synthetic keyboard early so the first insertion
// does not pay the device setup cost. Callers treat failure as a
// warning; Deliver retries on its own.
func (ins *Inserter) Prepare() error {
	if ins.mode == ModeClipboard {
		return nil
	}
	return initKeys()
}

// Deliver pushes text into the focused application according to the
// mode. Empty text is a no-op.
func (ins *Inserter) Deliver(text string) error {
	if text == "" {
		return nil
	}
	switch ins.mode {
	case ModeClipboard:
		if err := ins.copyFn(text); err != nil {
			return fmt.Errorf("clipboard copy: %w", err)
		}
		return nil
	case ModeType:
		return ins.typeFn(text)
	}

	prev, readErr := ins.readFn()
	if err := ins.copyFn(text); err != nil {
		return fmt.Errorf("clipboard copy: %w", err)
	}
	if err := ins.pasteFn(); err != nil {
		return fmt.Errorf("paste keystroke: %w", err)
	}
	if readErr == nil && prev != "" && prev != text {
		go func() {
			time.Sleep(ins.restoreAfter)
			ins.copyFn(prev)
		}()
	}
	return nil
}

// CopyOnly places text on the clipboard without a keystroke,
// regardless of mode. Used for the history copy action.
func (ins *Inserter) CopyOnly(text string) error {
	return ins.copyFn(text)
}
