//go:build !linux

package insert

import (
	"runtime"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
)

func initKeys() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
	})
	return kbErr
}

// pasteKeys fires the platform paste chord, Cmd+V on macOS and Ctrl+V
// elsewhere.
func pasteKeys() error {
	if err := initKeys(); err != nil {
		return err
	}
	kb.SetKeys(keybd_event.VK_V)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}

// typeKeys has no per-character backend off Linux; it falls back to
// clipboard paste after the same lead delay.
func typeKeys(text string) error {
	time.Sleep(typeLead)
	if err := cb.WriteAll(text); err != nil {
		return err
	}
	return pasteKeys()
}

// Verify checks that the keyboard event binding initializes.
func Verify() (string, error) {
	if err := initKeys(); err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return "keyboard event binding OK (Cmd+V)", nil
	}
	return "keyboard event binding OK (Ctrl+V)", nil
}
