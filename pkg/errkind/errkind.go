// Package errkind defines the error taxonomy shared by the audio, export and
// pattern packages.
package errkind

import (
	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// Error kinds attached to wrapped errors with ftag.
const (
	// KindAudioInit: the audio backend could not be created or resumed.
	KindAudioInit ftag.Kind = "AUDIO_INIT"
	// KindResourceLoad: an instrument sample failed to load or decode.
	KindResourceLoad ftag.Kind = "RESOURCE_LOAD"
	// KindGenerationData: a generated pattern is unusable after sanitizing.
	KindGenerationData ftag.Kind = "GENERATION_DATA"
)

// AudioInit wraps err as an AudioInitError.
func AudioInit(err error, msg string) error {
	return fault.Wrap(err,
		ftag.With(KindAudioInit),
		fmsg.WithDesc(msg, "The audio device could not be started."),
	)
}

// ResourceLoad wraps err as a ResourceLoadError.
func ResourceLoad(err error, msg string) error {
	return fault.Wrap(err,
		ftag.With(KindResourceLoad),
		fmsg.WithDesc(msg, "An instrument sample could not be loaded."),
	)
}

// GenerationData creates a GenerationDataError. desc is shown to users and
// should tell them what to change.
func GenerationData(msg, desc string) error {
	return fault.New(msg,
		ftag.With(KindGenerationData),
		fmsg.WithDesc(msg, desc),
	)
}

// Is reports whether err carries the given kind.
func Is(err error, kind ftag.Kind) bool {
	if err == nil {
		return false
	}
	return ftag.Get(err) == kind
}

// Message returns the user-facing description of err, falling back to the
// plain error text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}
	return err.Error()
}
