package output

import (
	"context"
	"errors"
	"testing"
)

type fakeClipboard struct {
	contents string
	writeErr error
}

func (f *fakeClipboard) read(ctx context.Context) (string, error) {
	return f.contents, nil
}

func (f *fakeClipboard) write(ctx context.Context, text string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.contents = text
	return nil
}

// mismatchClipboard always reads back something other than what was
// written, simulating a clipboard manager race.
type mismatchClipboard struct{}

func (m *mismatchClipboard) read(ctx context.Context) (string, error) {
	return "something-else", nil
}

func (m *mismatchClipboard) write(ctx context.Context, text string) error {
	return nil
}

func newTestInjector(cb clipboard) *Injector {
	return &Injector{shortcut: ShortcutCtrlShiftV, cb: cb}
}

func TestInjectCopyActionSkipsKeyInjection(t *testing.T) {
	cb := &fakeClipboard{contents: "old"}
	in := newTestInjector(cb)

	failure := in.Inject(context.Background(), "hello world", ActionCopy)
	if failure != nil {
		t.Fatalf("unexpected failure: %v", failure)
	}
	if cb.contents != "hello world" {
		t.Errorf("clipboard = %q, want %q", cb.contents, "hello world")
	}
}

func TestInjectClipboardWriteFailure(t *testing.T) {
	cb := &fakeClipboard{writeErr: errors.New("helper missing")}
	in := newTestInjector(cb)

	failure := in.Inject(context.Background(), "hello", ActionCopy)
	if failure == nil || failure.Step != StepClipboardWrite || failure.Kind != KindFailed {
		t.Fatalf("failure = %+v, want ClipboardWrite/Failed", failure)
	}
}

func TestInjectUnconfirmedWhenReadbackMismatches(t *testing.T) {
	in := newTestInjector(&mismatchClipboard{})

	failure := in.Inject(context.Background(), "hello", ActionCopy)
	if failure == nil || failure.Kind != KindUnconfirmed || !failure.TranscriptOnClipboard {
		t.Fatalf("failure = %+v, want Unconfirmed with transcript retained", failure)
	}
}

func TestInjectNoKeyBackendReportsFailedButKeepsClipboard(t *testing.T) {
	cb := &fakeClipboard{}
	in := newTestInjector(cb)

	failure := in.Inject(context.Background(), "hello", ActionPaste)
	if failure == nil || failure.Step != StepKeyInject || failure.Kind != KindFailed {
		t.Fatalf("failure = %+v, want KeyInject/Failed", failure)
	}
	if !failure.TranscriptOnClipboard {
		t.Errorf("expected transcript to remain on clipboard when key injection has no backend")
	}
}

func TestSetAndCurrentPasteShortcut(t *testing.T) {
	in := &Injector{shortcut: ShortcutCtrlShiftV}
	in.SetPasteShortcut(ShortcutCtrlV)
	if got := in.CurrentPasteShortcut(); got != ShortcutCtrlV {
		t.Errorf("CurrentPasteShortcut() = %v, want %v", got, ShortcutCtrlV)
	}
}
