package pipeline

import (
	"errors"
	"fmt"
)

// State is a stage of a single run.
type State string

// Run states, in order. Failed may follow any state.
const (
	StateReceived        State = "received"
	StateParsed          State = "parsed"
	StateTranslated      State = "translated"
	StateSkipTranslation State = "skip_translation"
	StateSynthesized     State = "synthesized"
	StateStored          State = "stored"
	StateDone            State = "done"
	StateFailed          State = "failed"
)

// Kind classifies a run-fatal error.
type Kind string

// Failure kinds. None of them is retried inside a run.
const (
	KindCredentialUnavailable Kind = "CredentialUnavailable"
	KindTranslationFailed     Kind = "TranslationFailed"
	KindSynthesisFailed       Kind = "SynthesisFailed"
	KindStorageReadFailed     Kind = "StorageReadFailed"
	KindStorageWriteFailed    Kind = "StorageWriteFailed"
	// KindInvalidState marks a step requested from Done or Failed. Run never does this.
	KindInvalidState Kind = "InvalidState"
)

// Failure is the fatal outcome of a run. State is the last state the run reached
// before failing. StatusCode is set when an upstream HTTP service rejected the call.
type Failure struct {
	Kind       Kind   `json:"kind"`
	State      State  `json:"state"`
	Detail     string `json:"detail"`
	StatusCode int    `json:"status_code,omitempty"`
	err        error
}

func newFailure(kind Kind, err error) *Failure {
	failure := &Failure{
		Kind:       kind,
		State:      "",
		Detail:     err.Error(),
		StatusCode: 0,
		err:        err,
	}

	var coded interface{ HTTPStatus() int }
	if errors.As(err, &coded) {
		failure.StatusCode = coded.HTTPStatus()
	}

	return failure
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s after %s: %s", f.Kind, f.State, f.Detail)
}

// Unwrap returns the underlying cause. It is nil for a Failure decoded from JSON.
func (f *Failure) Unwrap() error {
	return f.err
}

// Result is the structured outcome of one run.
type Result struct {
	RunID             string   `json:"run_id"`
	SourceBucket      string   `json:"source_bucket"`
	SourceName        string   `json:"source_name"`
	DestinationBucket string   `json:"destination_bucket,omitempty"`
	DestinationName   string   `json:"destination_name,omitempty"`
	TargetLanguage    string   `json:"target_language,omitempty"`
	VoiceID           string   `json:"voice_id,omitempty"`
	Translated        bool     `json:"translated"`
	AudioBytes        int      `json:"audio_bytes"`
	States            []State  `json:"states"`
	Failure           *Failure `json:"failure,omitempty"`
}

// Succeeded reports whether the run reached StateDone.
func (r Result) Succeeded() bool {
	return r.Failure == nil
}

// Err returns the run failure as an error, or nil on success.
func (r Result) Err() error {
	if r.Failure == nil {
		return nil
	}

	return r.Failure
}
