// Package dispatch owns the transcription worker. The engine is not
// safe for concurrent inference, so every call runs serialized on one
// goroutine; finished utterances take priority over live previews.
// Results come back over a bounded channel drained by the main loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"parla/engine"
	"parla/log"
)

var (
	// ErrEngineTimeout means the model did not finish loading within
	// the configured wait while an utterance was queued.
	ErrEngineTimeout = errors.New("engine not ready within timeout")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("dispatcher closed")
)

// DefaultReadyTimeout bounds how long a queued utterance waits for
// the model to finish loading before it fails.
const DefaultReadyTimeout = 30 * time.Second

// Kind distinguishes finished utterances from live preview snapshots.
type Kind int

const (
	Final Kind = iota
	Preview
)

func (k Kind) String() string {
	if k == Preview {
		return "preview"
	}
	return "final"
}

// Outcome carries one transcription result back to the main loop.
// Err is nil for NoSpeech outcomes: audio that produced no text is a
// no-op for the user, not a failure. PCM echoes the utterance audio
// on final outcomes so the caller can dump it for debugging.
type Outcome struct {
	Kind     Kind
	Res      engine.Result
	NoSpeech bool
	Err      error
	PCM      []byte
}

// HasText reports whether the outcome carries usable transcript text.
func (o Outcome) HasText() bool {
	return o.Err == nil && strings.TrimSpace(o.Res.Text) != ""
}

type request struct {
	pcm        []byte
	sampleRate int
	queued     time.Time
}

// Dispatcher serializes all engine access onto a single worker.
// Submissions while the model is still loading wait, bounded by the
// ready timeout. At most one final utterance is queued at a time; the
// session state machine enforces that upstream.
type Dispatcher struct {
	eng          engine.Engine
	readyTimeout time.Duration

	jobs     chan request
	previews chan request
	results  chan Outcome

	ready   chan struct{}
	failed  chan struct{}
	loadErr error // written once before failed closes

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// New starts the worker and begins loading the engine's model in the
// background. Callers must drain Results and call Close when done.
func New(eng engine.Engine, readyTimeout time.Duration) *Dispatcher {
	if readyTimeout <= 0 {
		readyTimeout = DefaultReadyTimeout
	}
	d := &Dispatcher{
		eng:          eng,
		readyTimeout: readyTimeout,
		jobs:         make(chan request, 1),
		previews:     make(chan request, 1),
		results:      make(chan Outcome, 8),
		ready:        make(chan struct{}),
		failed:       make(chan struct{}),
		done:         make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.wg.Add(2)
	go d.load()
	go d.run()
	return d
}

// Results delivers outcomes in completion order. The channel closes
// after Close returns.
func (d *Dispatcher) Results() <-chan Outcome { return d.results }

// Ready reports whether the model has finished loading.
func (d *Dispatcher) Ready() bool {
	select {
	case <-d.ready:
		return true
	default:
		return false
	}
}

// LoadErr returns the model load failure, or nil while loading or
// after a successful load.
func (d *Dispatcher) LoadErr() error {
	select {
	case <-d.failed:
		return d.loadErr
	default:
		return nil
	}
}

// Submit queues a finished utterance. It returns once the utterance
// is accepted; the result arrives on Results. A zero-length buffer
// short-circuits to a NoSpeech outcome without touching the engine.
func (d *Dispatcher) Submit(pcm []byte, sampleRate int) error {
	select {
	case <-d.done:
		return ErrClosed
	default:
	}
	req := request{pcm: pcm, sampleRate: sampleRate, queued: time.Now()}
	select {
	case <-d.done:
		return ErrClosed
	case d.jobs <- req:
		return nil
	}
}

// TryPreview offers a snapshot of the in-progress utterance for live
// transcription. Previews are best effort: the offer is refused when
// the worker already has one pending, and the worker drops accepted
// previews if the model is not loaded yet. Reports whether the
// snapshot was accepted.
func (d *Dispatcher) TryPreview(pcm []byte, sampleRate int) bool {
	if len(pcm) == 0 {
		return false
	}
	req := request{pcm: pcm, sampleRate: sampleRate, queued: time.Now()}
	select {
	case d.previews <- req:
		return true
	default:
		return false
	}
}

// Close stops the worker, waits for any in-flight inference to finish,
// closes Results, and releases the engine.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.done)
		d.cancel()
		d.wg.Wait()
		close(d.results)
		if err := d.eng.Close(); err != nil {
			log.Errorf("engine close: %v", err)
		}
	})
}

// load runs on its own goroutine so that queued submissions can time
// out even while the model load blocks.
func (d *Dispatcher) load() {
	defer d.wg.Done()
	start := time.Now()
	if err := d.eng.Load(d.ctx); err != nil {
		d.loadErr = err
		close(d.failed)
		log.Errorf("engine load failed: %v", err)
		return
	}
	log.ModelLoad(d.eng.Name(), float64(time.Since(start).Microseconds())/1000)
	close(d.ready)
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		// Final utterances outrank queued previews.
		select {
		case <-d.done:
			return
		case req := <-d.jobs:
			d.serve(req)
			continue
		default:
		}
		select {
		case <-d.done:
			return
		case req := <-d.jobs:
			d.serve(req)
		case req := <-d.previews:
			d.servePreview(req)
		}
	}
}

func (d *Dispatcher) serve(req request) {
	if len(req.pcm) == 0 {
		d.deliver(Outcome{Kind: Final, NoSpeech: true})
		return
	}

	// Wait for the model, bounded from the moment of submission.
	remaining := d.readyTimeout - time.Since(req.queued)
	if remaining < 0 {
		remaining = 0
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-d.ready:
	case <-d.failed:
		d.deliver(Outcome{Kind: Final, Err: fmt.Errorf("engine unavailable: %w", d.loadErr)})
		return
	case <-timer.C:
		d.deliver(Outcome{Kind: Final, Err: ErrEngineTimeout})
		return
	case <-d.done:
		return
	}

	queueWait := time.Since(req.queued)
	res, err := d.eng.Transcribe(d.ctx, req.pcm, req.sampleRate)
	if err != nil {
		log.Errorf("transcription failed: %v", err)
		d.deliver(Outcome{Kind: Final, Err: fmt.Errorf("transcription failed: %w", err), PCM: req.pcm})
		return
	}

	d.logMetrics(res, queueWait, Final)
	d.deliver(Outcome{
		Kind:     Final,
		Res:      res,
		NoSpeech: strings.TrimSpace(res.Text) == "",
		PCM:      req.pcm,
	})
}

func (d *Dispatcher) servePreview(req request) {
	select {
	case <-d.ready:
	default:
		// Model not loaded; previews are not worth waiting for.
		return
	}

	res, err := d.eng.Transcribe(d.ctx, req.pcm, req.sampleRate)
	if err != nil {
		log.Warnf("preview transcription failed: %v", err)
		return
	}
	if strings.TrimSpace(res.Text) == "" {
		return
	}

	d.logMetrics(res, time.Since(req.queued), Preview)
	d.deliver(Outcome{Kind: Preview, Res: res})
}

func (d *Dispatcher) deliver(o Outcome) {
	select {
	case d.results <- o:
	case <-d.done:
	}
}

func (d *Dispatcher) logMetrics(res engine.Result, queueWait time.Duration, kind Kind) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	log.TranscriptionMetrics(log.Metrics{
		AudioLengthS:  res.AudioS,
		QueueWaitMs:   float64(queueWait.Microseconds()) / 1000,
		InferTimeMs:   res.InferMs,
		RTF:           res.RTF(),
		MemoryAllocMB: float64(m.Alloc) / 1024 / 1024,
		MemoryPeakMB:  float64(m.TotalAlloc) / 1024 / 1024,
	}, d.eng.Name(), kind.String())
}
