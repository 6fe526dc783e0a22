package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"parla/audio"
	"parla/beep"
	"parla/config"
	"parla/dispatch"
	"parla/engine"
	"parla/history"
	"parla/hotkey"
	"parla/insert"
	"parla/log"
)

// printSink reports session events as single plain lines so the
// integration driver can assert on stdout.
type printSink struct{ nopSink }

func (printSink) RecordingStart() { fmt.Println("REC_START") }
func (printSink) RecordingStop()  { fmt.Println("REC_STOP") }

func (printSink) LivePreview(text string) {
	fmt.Println("PREVIEW " + text)
}

func (printSink) Transcription(text string, _ []string, _ bool, noSpeech bool) {
	if noSpeech {
		fmt.Println("NOSPEECH")
		return
	}
	if text != "" {
		fmt.Println("RESULT " + text)
	}
}

func (printSink) Notice(text string) {
	fmt.Println("NOTICE " + text)
}

// runTestMode drives the full capture/dispatch pipeline from stdin
// commands against a WAV file instead of a microphone. Commands:
// TOGGLE flips the session, WAIT blocks until the next final
// outcome, SLEEP <ms> pauses the script, QUIT exits.
func runTestMode(cfg *config.Config, modelPath, wavPath string) {
	beep.Disable()

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	fakeCtx, err := audio.NewFakeContext(wavPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		os.Exit(1)
	}

	eng := engine.NewNative(modelPath, cfg.Engine.Language)
	defer eng.Close()
	disp := dispatch.New(eng, cfg.ReadyTimeout())
	defer disp.Close()

	sink := printSink{}
	ctl := NewController(fakeCtx, nil, disp, sink, SessionConfig{
		SampleRate:       cfg.Audio.SampleRate,
		ChunkMs:          cfg.Audio.ChunkMs,
		SilenceThreshold: cfg.Silence.Threshold,
		SilenceDuration:  cfg.SilenceDuration(),
	})
	defer ctl.Close()

	log.SessionStart(eng.Name(), "fake")

	trigger := hotkey.NewFakeTrigger()
	transcribed := make(chan struct{}, 1)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			cmd := strings.TrimSpace(scanner.Text())
			switch {
			case cmd == "TOGGLE":
				trigger.SimToggle()
			case cmd == "WAIT":
				<-transcribed
			case cmd == "QUIT":
				log.SessionEnd(int(finalCount.Load()))
				os.Exit(0)
			case strings.HasPrefix(cmd, "SLEEP "):
				if ms, err := strconv.Atoi(cmd[6:]); err == nil {
					time.Sleep(time.Duration(ms) * time.Millisecond)
				}
			}
		}
		os.Exit(0)
	}()

	var previewCh <-chan time.Time
	if cfg.Preview.Enabled {
		pt := time.NewTicker(cfg.PreviewInterval())
		defer pt.Stop()
		previewCh = pt.C
	}

	// Clipboard-only insertion: test runs must not type into
	// whatever window has focus.
	lp := &loop{
		cfg:     cfg,
		ctl:     ctl,
		disp:    disp,
		hist:    history.New(0),
		ins:     insert.New(insert.ModeClipboard),
		sink:    sink,
		trigger: trigger,
		preview: previewCh,
		onFinal: func() {
			select {
			case transcribed <- struct{}{}:
			default:
			}
		},
	}
	lp.run()
}
