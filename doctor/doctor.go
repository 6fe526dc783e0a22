// Package doctor runs diagnostics over every subsystem a dictation
// session touches: capture devices, the model file, the log
// directory, the clipboard, keystroke output and the global hotkey.
// All checks except the final hotkey test run without user input.
package doctor

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	cb "github.com/atotto/clipboard"

	"parla/audio"
	"parla/config"
	"parla/hotkey"
	"parla/insert"
	"parla/log"
	"parla/model"
)

const totalChecks = 7

// Run executes the checks in order and returns an exit code
// (0 = all pass, 1 = any fail).
func Run(cfg *config.Config) int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("parla doctor - system diagnostics")
	fmt.Println("=================================")

	allPass := true
	note := func(ok bool) {
		if !ok {
			allPass = false
		}
	}

	actx, ok := checkDevices()
	note(ok)
	note(checkCapture(actx, cfg))
	if actx != nil {
		actx.Close()
	}
	note(checkModel(cfg))
	note(checkLogDir(cfg))
	note(checkClipboard())
	note(checkInsert(cfg))
	note(checkHotkey())

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed.")
		return 0
	}
	fmt.Println("Some checks failed. See details above.")
	return 1
}

func section(n int, title string) {
	fmt.Println()
	fmt.Printf("[%d/%d] %s\n", n, totalChecks, title)
}

func pass(format string, args ...any) bool {
	fmt.Printf("  PASS: "+format+"\n", args...)
	return true
}

func fail(format string, args ...any) bool {
	fmt.Printf("  FAIL: "+format+"\n", args...)
	return false
}

func checkDevices() (audio.Context, bool) {
	section(1, "Audio capture devices")

	actx, err := audio.NewContext()
	if err != nil {
		return nil, fail("cannot connect to audio backend: %v", err)
	}
	devices, err := actx.Devices()
	if err != nil {
		actx.Close()
		return nil, fail("cannot list capture devices: %v", err)
	}
	if len(devices) == 0 {
		actx.Close()
		return nil, fail("no capture devices found")
	}
	pass("%d capture device(s)", len(devices))
	for i, d := range devices {
		tag := ""
		if audio.IsBluetooth(d.Name) {
			tag = " (bluetooth)"
		}
		fmt.Printf("        %d. %s%s\n", i+1, d.Name, tag)
	}
	return actx, true
}

func checkCapture(actx audio.Context, cfg *config.Config) bool {
	section(2, "Microphone capture")

	if actx == nil {
		fmt.Println("  SKIP: no audio backend")
		return false
	}
	device, err := audio.FindDevice(actx, cfg.Audio.Device)
	if err != nil {
		return fail("%v", err)
	}
	dev, err := actx.NewCapture(device, audio.CaptureConfig{
		SampleRate: uint32(cfg.Audio.SampleRate),
		ChunkMs:    cfg.Audio.ChunkMs,
	})
	if err != nil {
		return fail("cannot open capture device: %v", err)
	}
	defer dev.Close()

	var mu sync.Mutex
	var chunks int
	var peak float64
	dev.SetCallbacks(audio.Callbacks{
		Data: func(c audio.Chunk) {
			mu.Lock()
			chunks++
			if r := c.RMS(); r > peak {
				peak = r
			}
			mu.Unlock()
		},
	})
	if err := dev.Start(); err != nil {
		return fail("cannot start capture: %v", err)
	}
	fmt.Printf("  Recording from %q for 1s...\n", dev.DeviceName())
	time.Sleep(time.Second)
	dev.Stop()
	dev.ClearCallbacks()

	mu.Lock()
	defer mu.Unlock()
	if chunks == 0 {
		return fail("no audio delivered in 1s")
	}
	if peak < 1 {
		fmt.Println("  WARN: audio arrived but is pure silence; check the input source")
	}
	return pass("%d chunk(s), peak level %.0f", chunks, peak)
}

func checkModel(cfg *config.Config) bool {
	section(3, "Model file")

	path, err := model.Find(cfg.Engine.Model)
	if err != nil {
		return fail("%v", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fail("%v", err)
	}
	if err := model.ValidateHeader(path); err != nil {
		return fail("%v", err)
	}
	return pass("%s (%d MB, ggml header ok)", path, fi.Size()/(1<<20))
}

func checkLogDir(cfg *config.Config) bool {
	section(4, "Log directory")

	dir, err := log.ResolveDir("", cfg.Log.Dir)
	if err != nil {
		return fail("cannot resolve log directory: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("cannot create %s: %v", dir, err)
	}
	probe := filepath.Join(dir, fmt.Sprintf(".doctor-%d", time.Now().UnixNano()))
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fail("cannot write to %s: %v", dir, err)
	}
	os.Remove(probe)
	return pass("%s is writable", dir)
}

func checkClipboard() bool {
	section(5, "Clipboard round-trip")

	want := fmt.Sprintf("parla-doctor-%d", time.Now().UnixNano())

	type result struct {
		got   string
		err   error
		phase string
	}
	ch := make(chan result, 1)
	go func() {
		if err := cb.WriteAll(want); err != nil {
			ch <- result{err: err, phase: "write"}
			return
		}
		got, err := cb.ReadAll()
		if err != nil {
			ch <- result{err: err, phase: "read"}
			return
		}
		ch <- result{got: got}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fail("clipboard %s failed: %v", res.phase, res.err)
		}
		if res.got != want {
			return fail("clipboard mismatch: wrote %q, read %q", want, res.got)
		}
		return pass("clipboard write/read verified")
	case <-time.After(3 * time.Second):
		// The helper tool can hang forever on a compositor that
		// refuses clipboard access to background processes.
		return fail("clipboard timed out (compositor not accessible?)")
	}
}

func checkInsert(cfg *config.Config) bool {
	section(6, "Keystroke output")

	mode, err := insert.ParseMode(cfg.Insert.Mode)
	if err != nil {
		return fail("%v", err)
	}
	if mode == insert.ModeClipboard {
		fmt.Println("  SKIP: insert mode is clipboard, keystrokes unused")
		return true
	}
	if err := insert.New(mode).Prepare(); err != nil {
		if runtime.GOOS == "linux" {
			fmt.Printf("  FAIL: %v\n", err)
			fmt.Println("  Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
			return false
		}
		return fail("%v", err)
	}
	msg, err := insert.Verify()
	if err != nil {
		return fail("%v", err)
	}
	return pass("%s", msg)
}

func checkHotkey() bool {
	section(7, "Hotkey detection")

	info, err := hotkey.Diagnose()
	if err != nil {
		return fail("%v", err)
	}
	fmt.Printf("  %s\n", info)

	hk := hotkey.New(0)
	if err := hk.Register(); err != nil {
		return fail("cannot register hotkey: %v", err)
	}
	defer hk.Unregister()
	defer resetTerminal()

	fmt.Println("  Press Ctrl+Shift+Space within 10s...")
	select {
	case <-hk.Toggles():
		return pass("toggle received")
	case <-time.After(10 * time.Second):
		return fail("timeout waiting for hotkey")
	}
}
