package dispatch

import (
	"errors"
	"testing"
	"time"

	"parla/engine"
)

func waitOutcome(t *testing.T, d *Dispatcher) Outcome {
	t.Helper()
	select {
	case o, ok := <-d.Results():
		if !ok {
			t.Fatal("results channel closed")
		}
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outcome")
	}
	return Outcome{}
}

func waitReady(t *testing.T, d *Dispatcher) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !d.Ready() {
		if time.Now().After(deadline) {
			t.Fatal("engine never became ready")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	fake := engine.NewFake("hello world", nil)
	d := New(fake, 0)
	defer d.Close()

	if err := d.Submit(make([]byte, 3200), 16000); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, d)
	if o.Kind != Final {
		t.Errorf("kind = %v, want Final", o.Kind)
	}
	if o.Err != nil {
		t.Fatalf("err = %v", o.Err)
	}
	if o.Res.Text != "hello world" || !o.HasText() {
		t.Errorf("text = %q", o.Res.Text)
	}
	if o.NoSpeech {
		t.Error("unexpected NoSpeech")
	}
}

func TestEmptyInputSkipsEngine(t *testing.T) {
	fake := engine.NewFake("never", nil)
	// Model load hangs; empty input must still resolve instantly.
	fake.SetLoad(nil, 10*time.Second)
	d := New(fake, 0)
	defer d.Close()

	if err := d.Submit(nil, 16000); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, d)
	if !o.NoSpeech || o.Err != nil {
		t.Fatalf("outcome = %+v, want NoSpeech", o)
	}
	if o.HasText() {
		t.Error("empty input produced text")
	}
	if fake.Calls() != 0 {
		t.Errorf("engine invoked %d times for empty input", fake.Calls())
	}
}

func TestSilentAudioIsNoSpeech(t *testing.T) {
	fake := engine.NewFake("", nil)
	d := New(fake, 0)
	defer d.Close()

	if err := d.Submit(make([]byte, 3200), 16000); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, d)
	if !o.NoSpeech || o.Err != nil {
		t.Fatalf("outcome = %+v, want NoSpeech with nil err", o)
	}
	if fake.Calls() != 1 {
		t.Errorf("calls = %d, want 1", fake.Calls())
	}
}

func TestEngineTimeout(t *testing.T) {
	fake := engine.NewFake("late", nil)
	fake.SetLoad(nil, 10*time.Second)
	d := New(fake, 50*time.Millisecond)
	defer d.Close()

	start := time.Now()
	if err := d.Submit(make([]byte, 320), 16000); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, d)
	if !errors.Is(o.Err, ErrEngineTimeout) {
		t.Fatalf("err = %v, want ErrEngineTimeout", o.Err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
	if fake.Calls() != 0 {
		t.Errorf("engine invoked %d times before ready", fake.Calls())
	}
}

func TestEngineLoadFailure(t *testing.T) {
	cause := errors.New("model file corrupt")
	fake := engine.NewFake("x", nil)
	fake.SetLoad(cause, 0)
	d := New(fake, 0)
	defer d.Close()

	if err := d.Submit(make([]byte, 320), 16000); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, d)
	if !errors.Is(o.Err, cause) {
		t.Fatalf("err = %v, want wrap of %v", o.Err, cause)
	}
	if d.LoadErr() == nil {
		t.Error("LoadErr() = nil after failed load")
	}
}

func TestTranscriptionError(t *testing.T) {
	cause := errors.New("inference blew up")
	fake := engine.NewFake("", cause)
	d := New(fake, 0)
	defer d.Close()

	if err := d.Submit(make([]byte, 320), 16000); err != nil {
		t.Fatal(err)
	}
	o := waitOutcome(t, d)
	if !errors.Is(o.Err, cause) {
		t.Fatalf("err = %v, want wrap of %v", o.Err, cause)
	}
	if o.HasText() {
		t.Error("failed outcome reports text")
	}
}

func TestSerializesSubmissions(t *testing.T) {
	fake := engine.NewFake("one at a time", nil)
	fake.SetWait(100 * time.Millisecond)
	d := New(fake, 0)
	defer d.Close()

	start := time.Now()
	if err := d.Submit(make([]byte, 320), 16000); err != nil {
		t.Fatal(err)
	}
	if err := d.Submit(make([]byte, 640), 16000); err != nil {
		t.Fatal(err)
	}

	first := waitOutcome(t, d)
	second := waitOutcome(t, d)
	if first.Err != nil || second.Err != nil {
		t.Fatalf("errs = %v, %v", first.Err, second.Err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("two inferences finished in %v, want serialized execution", elapsed)
	}
	if fake.Calls() != 2 {
		t.Errorf("calls = %d, want 2", fake.Calls())
	}
	// completion order follows submission order
	if len(fake.LastPCM()) != 640 {
		t.Errorf("last pcm = %d bytes, want 640", len(fake.LastPCM()))
	}
}

func TestPreviewDelivered(t *testing.T) {
	fake := engine.NewFake("live text", nil)
	d := New(fake, 0)
	defer d.Close()
	waitReady(t, d)

	if !d.TryPreview(make([]byte, 320), 16000) {
		t.Fatal("preview refused on idle worker")
	}
	o := waitOutcome(t, d)
	if o.Kind != Preview {
		t.Errorf("kind = %v, want Preview", o.Kind)
	}
	if o.Res.Text != "live text" {
		t.Errorf("text = %q", o.Res.Text)
	}
}

func TestPreviewDroppedWhileLoading(t *testing.T) {
	fake := engine.NewFake("never shown", nil)
	fake.SetLoad(nil, 10*time.Second)
	d := New(fake, 0)
	defer d.Close()

	if !d.TryPreview(make([]byte, 320), 16000) {
		t.Fatal("preview refused")
	}
	select {
	case o := <-d.Results():
		t.Fatalf("unexpected outcome %+v", o)
	case <-time.After(100 * time.Millisecond):
	}
	if fake.Calls() != 0 {
		t.Errorf("engine invoked %d times before ready", fake.Calls())
	}
}

func TestPreviewRefusedWhenPending(t *testing.T) {
	fake := engine.NewFake("busy", nil)
	fake.SetWait(300 * time.Millisecond)
	d := New(fake, 0)
	defer d.Close()
	waitReady(t, d)

	if err := d.Submit(make([]byte, 320), 16000); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond) // let the worker enter inference

	if !d.TryPreview(make([]byte, 320), 16000) {
		t.Fatal("first preview refused")
	}
	if d.TryPreview(make([]byte, 320), 16000) {
		t.Error("second preview accepted while one was pending")
	}

	final := waitOutcome(t, d)
	if final.Kind != Final {
		t.Fatalf("kind = %v, want Final first", final.Kind)
	}
	preview := waitOutcome(t, d)
	if preview.Kind != Preview {
		t.Fatalf("kind = %v, want Preview second", preview.Kind)
	}
}

func TestEmptyPreviewRefused(t *testing.T) {
	fake := engine.NewFake("x", nil)
	d := New(fake, 0)
	defer d.Close()

	if d.TryPreview(nil, 16000) {
		t.Error("zero-length preview accepted")
	}
}

func TestCloseRejectsSubmit(t *testing.T) {
	fake := engine.NewFake("x", nil)
	d := New(fake, 0)
	d.Close()

	if err := d.Submit(make([]byte, 320), 16000); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
	if _, ok := <-d.Results(); ok {
		t.Error("results channel still open after Close")
	}
}
