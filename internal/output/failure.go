package output

import "fmt"

// PasteFailure describes why a paste/copy attempt didn't fully succeed.
// TranscriptOnClipboard tells the caller whether the user can still
// manually paste.
type PasteFailure struct {
	Step                  FailureStep
	Kind                  FailureKind
	Message               string
	TranscriptOnClipboard bool
}

func (f *PasteFailure) Error() string {
	return fmt.Sprintf("%s %s: %s", f.Step, f.Kind, f.Message)
}

func newFailure(step FailureStep, kind FailureKind, msg string, onClipboard bool) *PasteFailure {
	return &PasteFailure{Step: step, Kind: kind, Message: msg, TranscriptOnClipboard: onClipboard}
}
