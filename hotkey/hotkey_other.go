//go:build !linux

package hotkey

import (
	"golang.design/x/hotkey"
)

type xKeys struct {
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
}

func newKeys() Keys {
	return &xKeys{
		hk:      hotkey.New([]hotkey.Modifier{hotkey.ModCtrl, hotkey.ModShift}, hotkey.KeySpace),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (k *xKeys) Register() error {
	if err := k.hk.Register(); err != nil {
		return err
	}
	go func() {
		for {
			<-k.hk.Keydown()
			k.keydown <- struct{}{}
		}
	}()
	go func() {
		for {
			<-k.hk.Keyup()
			k.keyup <- struct{}{}
		}
	}()
	return nil
}

func (k *xKeys) Unregister() {
	k.hk.Unregister()
}

func (k *xKeys) Keydown() <-chan struct{} { return k.keydown }
func (k *xKeys) Keyup() <-chan struct{}   { return k.keyup }

func Diagnose() (string, error) {
	return "hotkey support available (Ctrl+Shift+Space)", nil
}
