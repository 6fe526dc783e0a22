//go:build linux

package insert

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Keystrokes go through a virtual uinput keyboard, which works on both
// X11 and Wayland without talking to the compositor.

const kbdName = "parla-kbd"

// from linux/uinput.h
const (
	uiSetEvbit  = 0x40045564 // UI_SET_EVBIT
	uiSetKeybit = 0x40045565 // UI_SET_KEYBIT
	uiDevCreate = 0x5501     // UI_DEV_CREATE
)

// from linux/input-event-codes.h
const (
	evSyn = 0x00
	evKey = 0x01

	keyLeftCtrl  = 29
	keyLeftShift = 42
	keyV         = 47
)

const busUSB = 0x03

type inputEvent struct {
	Time  syscall.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FfEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

var (
	kbdFile *os.File
	kbdOnce sync.Once
	kbdErr  error
)

// initKeys creates the virtual keyboard once per process.
func initKeys() error {
	kbdOnce.Do(func() {
		path := "/dev/uinput"
		if _, err := os.Stat(path); err != nil {
			path = "/dev/input/uinput"
			if _, err := os.Stat(path); err != nil {
				kbdErr = errors.New("uinput device not found, try: sudo modprobe uinput")
				return
			}
		}
		f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, os.ModeDevice)
		if err != nil {
			kbdErr = err
			return
		}
		if err := setupKbd(f); err != nil {
			kbdErr = err
			f.Close()
			return
		}
		kbdFile = f
		// The compositor needs a moment to pick up the new device
		// before it will route events from it.
		time.Sleep(200 * time.Millisecond)
	})
	return kbdErr
}

func setupKbd(f *os.File) error {
	ioctl := func(req, arg uintptr) error {
		if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, f.Fd(), req, arg); errno != 0 {
			return errno
		}
		return nil
	}
	if err := ioctl(uiSetEvbit, evKey); err != nil {
		return err
	}
	if err := ioctl(uiSetEvbit, evSyn); err != nil {
		return err
	}
	// Register every standard key so udev classifies the device as a
	// real keyboard.
	for code := uintptr(0); code < 256; code++ {
		if err := ioctl(uiSetKeybit, code); err != nil {
			return err
		}
	}

	dev := uinputUserDev{}
	copy(dev.Name[:], kbdName)
	dev.ID.Bustype = busUSB
	dev.ID.Vendor = 0x7061 // "pa"
	dev.ID.Product = 0x726c
	dev.ID.Version = 1
	if err := binary.Write(f, binary.LittleEndian, &dev); err != nil {
		return err
	}
	return ioctl(uiDevCreate, 0)
}

func sendKey(code uint16, value int32) error {
	ev := inputEvent{Type: evKey, Code: code, Value: value}
	return binary.Write(kbdFile, binary.LittleEndian, &ev)
}

func report() error {
	ev := inputEvent{Type: evSyn}
	return binary.Write(kbdFile, binary.LittleEndian, &ev)
}

func press(code uint16) error {
	if err := sendKey(code, 1); err != nil {
		return err
	}
	return report()
}

func release(code uint16) error {
	if err := sendKey(code, 0); err != nil {
		return err
	}
	return report()
}

// pasteKeys fires Ctrl+V. The short sleeps let the compositor observe
// the modifier state between events.
func pasteKeys() error {
	if err := initKeys(); err != nil {
		return err
	}
	if err := press(keyLeftCtrl); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	if err := press(keyV); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	if err := release(keyV); err != nil {
		return err
	}
	time.Sleep(5 * time.Millisecond)
	return release(keyLeftCtrl)
}

func keyTap(code uint16, shift bool) error {
	if shift {
		if err := press(keyLeftShift); err != nil {
			return err
		}
	}
	if err := press(code); err != nil {
		return err
	}
	if err := release(code); err != nil {
		return err
	}
	if shift {
		if err := release(keyLeftShift); err != nil {
			return err
		}
	}
	return nil
}

// Verify creates the virtual keyboard, fires Ctrl+V, and reads the
// events back from the kernel input layer to confirm delivery.
func Verify() (string, error) {
	if err := initKeys(); err != nil {
		return "", fmt.Errorf("uinput init: %w", err)
	}

	entries, err := os.ReadDir("/sys/class/input")
	if err != nil {
		return "", fmt.Errorf("cannot scan input devices: %w", err)
	}
	var evdevPath string
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		data, err := os.ReadFile(filepath.Join("/sys/class/input", e.Name(), "device", "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(data)) == kbdName {
			evdevPath = filepath.Join("/dev/input", e.Name())
			break
		}
	}
	if evdevPath == "" {
		return "", fmt.Errorf("%s evdev device not found", kbdName)
	}

	evdev, err := os.Open(evdevPath)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", evdevPath, err)
	}
	defer evdev.Close()

	if err := pasteKeys(); err != nil {
		return "", fmt.Errorf("paste send: %w", err)
	}

	type result struct {
		ctrl, v bool
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 24*32)
		var r result
		n, err := evdev.Read(buf)
		if err != nil {
			r.err = err
			ch <- r
			return
		}
		for i := 0; i+24 <= n; i += 24 {
			evType := binary.LittleEndian.Uint16(buf[i+16:])
			evCode := binary.LittleEndian.Uint16(buf[i+18:])
			if evType == evKey {
				switch evCode {
				case keyLeftCtrl:
					r.ctrl = true
				case keyV:
					r.v = true
				}
			}
		}
		ch <- r
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("reading events: %w", r.err)
		}
		if !r.ctrl || !r.v {
			return "", fmt.Errorf("missing events (ctrl=%v, v=%v)", r.ctrl, r.v)
		}
		return fmt.Sprintf("Ctrl+V keystroke verified via %s", evdevPath), nil
	case <-time.After(500 * time.Millisecond):
		return "", errors.New("timed out waiting for keystroke events")
	}
}
