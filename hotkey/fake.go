package hotkey

// FakeKeys drives a Toggler from tests and simulated input.
type FakeKeys struct {
	keydown chan struct{}
	keyup   chan struct{}
}

func NewFakeKeys() *FakeKeys {
	return &FakeKeys{
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
	}
}

func (f *FakeKeys) Register() error          { return nil }
func (f *FakeKeys) Unregister()              {}
func (f *FakeKeys) Keydown() <-chan struct{} { return f.keydown }
func (f *FakeKeys) Keyup() <-chan struct{}   { return f.keyup }

func (f *FakeKeys) SimKeydown() { f.keydown <- struct{}{} }
func (f *FakeKeys) SimKeyup()   { f.keyup <- struct{}{} }

// FakeTrigger feeds toggle events directly, bypassing key handling.
// Used by the session tests and the stdin-driven test mode.
type FakeTrigger struct {
	toggles chan struct{}
}

func NewFakeTrigger() *FakeTrigger {
	return &FakeTrigger{toggles: make(chan struct{}, 1)}
}

func (f *FakeTrigger) Register() error          { return nil }
func (f *FakeTrigger) Unregister()              {}
func (f *FakeTrigger) Toggles() <-chan struct{} { return f.toggles }

func (f *FakeTrigger) SimToggle() { f.toggles <- struct{}{} }
