package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Southclaws/fault/ftag"
)

func TestKinds(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		kind ftag.Kind
		msg  string
	}{
		{"audio init", AudioInit(base, "open failed"), KindAudioInit, "The audio device could not be started."},
		{"resource load", ResourceLoad(base, "kick.wav"), KindResourceLoad, "An instrument sample could not be loaded."},
		{"generation data", GenerationData("no notes", "Try again."), KindGenerationData, "Try again."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !Is(tt.err, tt.kind) {
				t.Errorf("Is(%v, %s) = false", tt.err, tt.kind)
			}
			// Kinds survive further wrapping.
			wrapped := fmt.Errorf("export: %w", tt.err)
			if !Is(wrapped, tt.kind) {
				t.Errorf("kind lost after wrapping")
			}
			if got := Message(tt.err); got != tt.msg {
				t.Errorf("Message() = %q, want %q", got, tt.msg)
			}
		})
	}

	if !errors.Is(AudioInit(base, "x"), base) {
		t.Error("AudioInit does not unwrap to the cause")
	}
}

func TestPlainErrors(t *testing.T) {
	err := errors.New("plain")
	if Is(err, KindAudioInit) || Is(nil, KindAudioInit) {
		t.Error("untagged error reported a kind")
	}
	if Message(err) != "plain" || Message(nil) != "" {
		t.Errorf("Message() fallback wrong")
	}
}
