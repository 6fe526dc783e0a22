package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"parla/audio"
	"parla/beep"
	"parla/config"
	"parla/dispatch"
	"parla/doctor"
	"parla/encoder"
	"parla/engine"
	"parla/history"
	"parla/hotkey"
	"parla/insert"
	"parla/log"
	"parla/model"
	"parla/shutdown"
)

var version = "dev"

var (
	tuiProgram   *tea.Program
	finalCount   atomic.Int32
	shutdownOnce sync.Once
)

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if n := finalCount.Load(); n > 0 {
			log.SessionEnd(int(n))
		}
		log.Close()
		if tuiProgram != nil {
			tuiProgram.Quit()
		}
		os.Exit(0)
	})
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT: capture may be narrowband)"
		}
	}
	return "mic: " + name + suffix
}

func engineLabel(engineName string, cfg *config.Config, mode insert.Mode) string {
	return fmt.Sprintf("%s | %s | insert: %s", engineName, cfg.Engine.Model, mode)
}

// watchEngine pushes the model load state to the display once loading
// resolves either way.
func watchEngine(disp *dispatch.Dispatcher, sink EventSink, label string) {
	sink.EngineLine(label + " (loading model...)")
	for {
		if err := disp.LoadErr(); err != nil {
			sink.EngineLine(label + " (unavailable)")
			sink.Notice("model load failed: " + err.Error())
			return
		}
		if disp.Ready() {
			sink.EngineLine(label + " (ready)")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// plainSink is the no-TUI display: transcripts to stdout, notices to
// stderr, everything else dropped.
type plainSink struct{ nopSink }

func (plainSink) Transcription(text string, _ []string, _ bool, noSpeech bool) {
	if text != "" && !noSpeech {
		fmt.Println(text)
	}
}

func (plainSink) Notice(text string) {
	fmt.Fprintln(os.Stderr, text)
}

func run() {
	configFlag := flag.String("config", "", "config file path (default: OS config dir, or $PARLA_CONFIG)")
	deviceFlag := flag.String("device", "", "use the capture device whose name contains this string")
	setupFlag := flag.Bool("setup", false, "select the capture device interactively")
	modelFlag := flag.String("model", "", "model name or path (overrides config)")
	langFlag := flag.String("lang", "", "transcription language code, or auto (overrides config)")
	insertFlag := flag.String("insert", "", "insert mode: paste, type, or clipboard (overrides config)")
	dumpFlag := flag.Bool("dump", false, "save each utterance as FLAC in the log directory")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	versionFlag := flag.Bool("version", false, "print version and exit")
	doctorFlag := flag.Bool("doctor", false, "run system diagnostics and exit")
	fetchFlag := flag.Bool("fetch-model", false, "download the configured model and exit")
	testFlag := flag.Bool("test", false, "test mode (headless, stdin-driven): parla -test <wav-file>")
	tuiFlag := flag.Bool("tui", true, "run with the terminal UI")
	crashFlag := flag.Bool("crash", false, "trigger synthetic panic for testing crash logging")
	profileFlag := flag.String("profile", "", "enable pprof profiling server (e.g. localhost:6060)")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("parla %s\n", version)
		os.Exit(0)
	}

	cfg, cfgSource, err := config.Resolve(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}
	if *modelFlag != "" {
		cfg.Engine.Model = *modelFlag
	}
	if *langFlag != "" {
		cfg.Engine.Language = *langFlag
	}
	if *insertFlag != "" {
		cfg.Insert.Mode = *insertFlag
	}
	if *dumpFlag {
		cfg.Dump = true
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag, cfg.Log.Dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	if crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *doctorFlag {
		os.Exit(doctor.Run(cfg))
	}

	if *fetchFlag {
		path, err := model.Fetch(cfg.Engine.Model)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Model ready at %s\n", path)
		os.Exit(0)
	}

	modelPath, err := model.Find(cfg.Engine.Model)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := model.ValidateHeader(modelPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: parla -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(cfg, modelPath, args[0])
		return
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	if cfgSource != "" {
		log.Infof("config loaded from %s", cfgSource)
	}

	if !cfg.Beep {
		beep.Disable()
	}
	go beep.Init()

	mode, err := insert.ParseMode(cfg.Insert.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ins := insert.New(mode)
	if err := ins.Prepare(); err != nil {
		fmt.Printf("Warning: keystroke output init failed: %v\n", err)
		if runtime.GOOS == "linux" {
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
		}
	}

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var device *audio.DeviceInfo
	if cfg.Audio.Device != "" {
		device, err = audio.FindDevice(actx, cfg.Audio.Device)
		if err != nil {
			log.Warnf("%v", err)
			fmt.Printf("Warning: %v, falling back to default device\n", err)
		}
	} else if *setupFlag {
		device, err = audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			device = nil
		}
	}

	eng := engine.NewNative(modelPath, cfg.Engine.Language)
	defer eng.Close()
	disp := dispatch.New(eng, cfg.ReadyTimeout())
	defer disp.Close()

	var sink EventSink = plainSink{}
	actions := make(chan TUIAction, 1)
	if *tuiFlag {
		tuiProgram = NewTUIProgram(actions)
		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown()
		}()
		<-tuiReady
		sink = tuiSink{p: tuiProgram}
	}

	deviceName := "default"
	if device != nil {
		deviceName = device.Name
	}
	log.SessionStart(eng.Name(), deviceName)

	ctl := NewController(actx, device, disp, sink, SessionConfig{
		SampleRate:       cfg.Audio.SampleRate,
		ChunkMs:          cfg.Audio.ChunkMs,
		SilenceThreshold: cfg.Silence.Threshold,
		SilenceDuration:  cfg.SilenceDuration(),
	})
	defer ctl.Close()

	hk := hotkey.New(cfg.HoldThreshold())
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Fprintf(os.Stderr, "Error registering hotkey: %v\n", err)
		os.Exit(1)
	}
	defer hk.Unregister()

	sink.DeviceLine(deviceLineText(device))
	go watchEngine(disp, sink, engineLabel(eng.Name(), cfg, mode))

	sigs := shutdown.Signals()

	uiTick := time.NewTicker(200 * time.Millisecond)
	defer uiTick.Stop()
	var previewCh <-chan time.Time
	if cfg.Preview.Enabled {
		pt := time.NewTicker(cfg.PreviewInterval())
		defer pt.Stop()
		previewCh = pt.C
	}

	lp := &loop{
		cfg:     cfg,
		ctl:     ctl,
		disp:    disp,
		hist:    history.New(0),
		ins:     ins,
		sink:    sink,
		trigger: hk,
		actions: actions,
		sigs:    sigs,
		preview: previewCh,
		uiTick:  uiTick.C,
	}
	lp.run()
}

// loop owns the single goroutine that serializes every session state
// transition: hotkey toggles, silence and stream-error stops,
// transcription outcomes, preview ticks and user actions.
type loop struct {
	cfg     *config.Config
	ctl     *Controller
	disp    *dispatch.Dispatcher
	hist    *history.Ring
	ins     *insert.Inserter
	sink    EventSink
	trigger hotkey.Trigger
	actions <-chan TUIAction
	sigs    <-chan os.Signal
	preview <-chan time.Time
	uiTick  <-chan time.Time
	onFinal func()

	lastPreview string
}

func (l *loop) run() {
	for {
		select {
		case <-l.trigger.Toggles():
			l.handleToggle()
		case reason := <-l.ctl.Stops():
			l.handleAutoStop(reason)
		case o, ok := <-l.disp.Results():
			if !ok {
				return
			}
			l.handleOutcome(o)
		case <-l.preview:
			l.maybePreview()
		case <-l.uiTick:
			if l.ctl.State() == StateRecording {
				l.sink.RecordingTick(l.ctl.RecordingElapsed().Seconds())
			}
		case a := <-l.actions:
			if a == ActionCopyLast {
				l.copyLast()
			}
		case <-l.sigs:
			gracefulShutdown()
		}
	}
}

func (l *loop) handleToggle() {
	wasIdle := l.ctl.State() == StateIdle
	if err := l.ctl.Toggle(); err != nil {
		if errors.Is(err, ErrSessionBusy) {
			l.sink.Notice("still transcribing, wait...")
			return
		}
		log.Errorf("recording start failed: %v", err)
		l.sink.Notice("cannot record: " + err.Error())
		go beep.PlayError()
		return
	}
	if wasIdle {
		go beep.PlayStart()
	} else {
		go beep.PlayEnd()
		l.lastPreview = ""
	}
}

func (l *loop) handleAutoStop(reason StopReason) {
	l.ctl.HandleStop(reason)
	l.lastPreview = ""
	go beep.PlayEnd()
	if reason == StopStreamError {
		l.sink.Notice("audio stream failed, transcribing what was captured")
	}
}

func (l *loop) maybePreview() {
	pcm, ok := l.ctl.PreviewSnapshot()
	if !ok {
		return
	}
	l.disp.TryPreview(pcm, l.cfg.Audio.SampleRate)
}

func (l *loop) handleOutcome(o dispatch.Outcome) {
	l.ctl.HandleOutcome(o)

	if o.Kind == dispatch.Preview {
		if o.Err != nil || !o.HasText() {
			return
		}
		text := strings.TrimSpace(o.Res.Text)
		if text == l.lastPreview {
			return
		}
		l.lastPreview = text
		l.sink.LivePreview(text)
		return
	}

	l.lastPreview = ""
	defer func() {
		if l.onFinal != nil {
			l.onFinal()
		}
	}()

	if o.Err != nil {
		log.Errorf("transcription failed: %v", o.Err)
		l.sink.Transcription("", nil, false, false)
		l.sink.Notice("transcription failed: " + o.Err.Error())
		go beep.PlayError()
		l.dump(uuid.NewString(), o.PCM)
		return
	}

	if o.NoSpeech || !o.HasText() {
		log.Info("no_speech")
		l.sink.Transcription("(no speech detected)", l.metricsLines(o.Res), false, true)
		l.dump(uuid.NewString(), o.PCM)
		return
	}

	text := strings.TrimSpace(o.Res.Text)
	duplicate := false
	if last, ok := l.hist.Latest(); ok && last.Text == text {
		duplicate = true
	}

	copied := false
	if duplicate {
		log.Info("duplicate_suppressed")
		l.sink.Notice("same as previous transcription, not re-inserted")
	} else if err := l.ins.Deliver(text); err != nil {
		log.Errorf("insert failed: %v", err)
		l.sink.Notice("insert failed: " + err.Error())
	} else {
		copied = l.ins.Mode() == insert.ModeClipboard
	}

	entry := l.hist.Add(text, o.Res.AudioS)
	finalCount.Add(1)
	log.TranscriptionText(text)
	if segs := engine.MergeSegments(o.Res.Segments); len(segs) > 1 {
		for _, seg := range segs {
			log.Infof("segment %s %s", seg.FormattedRange(), seg.Text)
		}
	}
	l.sink.Transcription(text, l.metricsLines(o.Res), copied, false)
	l.sink.History(l.hist.Entries())
	l.dump(entry.ID.String(), o.PCM)
}

func (l *loop) copyLast() {
	last, ok := l.hist.Latest()
	if !ok {
		l.sink.Notice("nothing to copy yet")
		return
	}
	if err := l.ins.CopyOnly(last.Text); err != nil {
		l.sink.Notice("copy failed: " + err.Error())
		return
	}
	l.sink.Notice("copied last transcription")
}

func (l *loop) metricsLines(res engine.Result) []string {
	if res.AudioS == 0 && res.InferMs == 0 {
		return nil
	}
	return []string{
		fmt.Sprintf("audio: %.1fs", res.AudioS),
		fmt.Sprintf("inference: %.0f ms (rtf %.2f)", res.InferMs, res.RTF()),
	}
}

func (l *loop) dump(id string, pcm []byte) {
	if !l.cfg.Dump || len(pcm) == 0 {
		return
	}
	path, err := encoder.Dump(log.Dir(), id, pcm, uint32(l.cfg.Audio.SampleRate))
	if err != nil {
		log.Warnf("audio dump failed: %v", err)
		return
	}
	log.Info("audio_dump: " + path)
}
