package insert

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type hookLog struct {
	mu     sync.Mutex
	seq    []string
	copies []string
	copied chan string
}

func newHooked(mode Mode) (*Inserter, *hookLog) {
	h := &hookLog{copied: make(chan string, 4)}
	ins := New(mode)
	ins.restoreAfter = 5 * time.Millisecond
	ins.copyFn = func(s string) error {
		h.mu.Lock()
		h.seq = append(h.seq, "copy")
		h.copies = append(h.copies, s)
		h.mu.Unlock()
		h.copied <- s
		return nil
	}
	ins.readFn = func() (string, error) { return "", nil }
	ins.pasteFn = func() error {
		h.mu.Lock()
		h.seq = append(h.seq, "paste")
		h.mu.Unlock()
		return nil
	}
	ins.typeFn = func(s string) error {
		h.mu.Lock()
		h.seq = append(h.seq, "type:"+s)
		h.mu.Unlock()
		return nil
	}
	return ins, h
}

func (h *hookLog) sequence() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.seq...)
}

func waitCopy(t *testing.T, h *hookLog) string {
	t.Helper()
	select {
	case s := <-h.copied:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for clipboard write")
	}
	return ""
}

func expectNoCopy(t *testing.T, h *hookLog) {
	t.Helper()
	select {
	case s := <-h.copied:
		t.Fatalf("unexpected clipboard write %q", s)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"paste", "type", "clipboard"} {
		m, err := ParseMode(s)
		if err != nil || string(m) != s {
			t.Errorf("ParseMode(%q) = %v, %v", s, m, err)
		}
	}
	if m, err := ParseMode(""); err != nil || m != ModePaste {
		t.Errorf("empty mode = %v, %v, want paste default", m, err)
	}
	if _, err := ParseMode("telepathy"); err == nil {
		t.Error("unknown mode accepted")
	}
}

func TestDeliverPaste(t *testing.T) {
	ins, h := newHooked(ModePaste)
	ins.readFn = func() (string, error) { return "old clipboard", nil }

	if err := ins.Deliver("hello world"); err != nil {
		t.Fatal(err)
	}
	if got := waitCopy(t, h); got != "hello world" {
		t.Errorf("copied %q", got)
	}
	if got := waitCopy(t, h); got != "old clipboard" {
		t.Errorf("restore copied %q, want previous content", got)
	}
	seq := h.sequence()
	if len(seq) < 2 || seq[0] != "copy" || seq[1] != "paste" {
		t.Errorf("sequence = %v, want copy then paste", seq)
	}
}

func TestDeliverPasteSkipsRestore(t *testing.T) {
	t.Run("empty previous", func(t *testing.T) {
		ins, h := newHooked(ModePaste)
		if err := ins.Deliver("text"); err != nil {
			t.Fatal(err)
		}
		waitCopy(t, h)
		expectNoCopy(t, h)
	})
	t.Run("previous equals text", func(t *testing.T) {
		ins, h := newHooked(ModePaste)
		ins.readFn = func() (string, error) { return "text", nil }
		if err := ins.Deliver("text"); err != nil {
			t.Fatal(err)
		}
		waitCopy(t, h)
		expectNoCopy(t, h)
	})
	t.Run("read failed", func(t *testing.T) {
		ins, h := newHooked(ModePaste)
		ins.readFn = func() (string, error) { return "", errors.New("no display") }
		if err := ins.Deliver("text"); err != nil {
			t.Fatal(err)
		}
		waitCopy(t, h)
		expectNoCopy(t, h)
	})
}

func TestDeliverClipboardMode(t *testing.T) {
	ins, h := newHooked(ModeClipboard)
	if err := ins.Deliver("just copy"); err != nil {
		t.Fatal(err)
	}
	if got := waitCopy(t, h); got != "just copy" {
		t.Errorf("copied %q", got)
	}
	for _, s := range h.sequence() {
		if s == "paste" {
			t.Error("clipboard mode fired a paste keystroke")
		}
	}
}

func TestDeliverTypeMode(t *testing.T) {
	ins, h := newHooked(ModeType)
	if err := ins.Deliver("abc"); err != nil {
		t.Fatal(err)
	}
	seq := h.sequence()
	if len(seq) != 1 || seq[0] != "type:abc" {
		t.Errorf("sequence = %v, want single type call", seq)
	}
}

func TestDeliverEmptyIsNoop(t *testing.T) {
	ins, h := newHooked(ModePaste)
	if err := ins.Deliver(""); err != nil {
		t.Fatal(err)
	}
	expectNoCopy(t, h)
	if seq := h.sequence(); len(seq) != 0 {
		t.Errorf("sequence = %v, want none", seq)
	}
}

func TestDeliverCopyFailure(t *testing.T) {
	ins, _ := newHooked(ModePaste)
	cause := errors.New("clipboard gone")
	ins.copyFn = func(string) error { return cause }
	if err := ins.Deliver("text"); !errors.Is(err, cause) {
		t.Errorf("err = %v, want wrap of copy failure", err)
	}
}

func TestCopyOnly(t *testing.T) {
	ins, h := newHooked(ModeType)
	if err := ins.CopyOnly("from history"); err != nil {
		t.Fatal(err)
	}
	if got := waitCopy(t, h); got != "from history" {
		t.Errorf("copied %q", got)
	}
}
