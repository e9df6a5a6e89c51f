// Package pipeline turns one stored narration script into one stored audio object.
//
// A run is a small state machine:
//
//	Received -> Parsed -> Translated | SkipTranslation -> Synthesized -> Stored -> Done
//
// Any step may instead move the run to Failed with a classified Failure. Audio is
// written only after synthesis succeeded, and the destination name is a pure function
// of the source name and language, so a redelivered event overwrites rather than
// duplicates.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/header"
	"github.com/book-expert/narration-service/internal/naming"
	"github.com/book-expert/narration-service/internal/profile"
	"github.com/google/uuid"
)

// Static errors.
var (
	ErrBucketsNil            = errors.New("bucket opener cannot be nil")
	ErrSynthesizerNil        = errors.New("synthesizer cannot be nil")
	ErrCredentialsNil        = errors.New("credential source cannot be nil")
	ErrLoggerNil             = errors.New("logger cannot be nil")
	ErrDestinationEmpty      = errors.New("destination bucket cannot be empty")
	ErrTranslatorUnavailable = errors.New("translation requested but no translator is configured")
	ErrUnexpectedState       = errors.New("unexpected pipeline state")
)

// Log formats.
const (
	logFmtRunStarted     = "Run %s: received %s/%s"
	logFmtTransition     = "Run %s: %s -> %s"
	logFmtRunCompleted   = "Run %s: stored %s/%s (%d bytes, translated=%t)"
	logFmtRunFailed      = "Run %s: failed: %v"
	logFmtConfigResolved = "Run %s: voice=%s target_language=%q stability=%.2f similarity=%.2f style=%.2f"
)

// Event identifies the source object that triggered a run.
type Event struct {
	Bucket string
	Name   string
}

// Dependencies are the collaborators shared by every run of an Orchestrator.
// Translator may be nil when translation is never configured; a run that requests a
// language then fails with TranslationFailed.
type Dependencies struct {
	Buckets           core.BucketOpener
	DestinationBucket string
	Translator        core.Translator
	Synthesizer       core.Synthesizer
	Credentials       core.CredentialSource
	Defaults          profile.Defaults
	Log               *logger.Logger
}

// Orchestrator sequences the pipeline steps for individual trigger events. It is safe
// for concurrent use; runs share nothing except the credential source.
type Orchestrator struct {
	deps Dependencies
}

// New creates an Orchestrator after validating its dependencies.
func New(deps Dependencies) (*Orchestrator, error) {
	switch {
	case deps.Buckets == nil:
		return nil, ErrBucketsNil
	case deps.Synthesizer == nil:
		return nil, ErrSynthesizerNil
	case deps.Credentials == nil:
		return nil, ErrCredentialsNil
	case deps.Log == nil:
		return nil, ErrLoggerNil
	case deps.DestinationBucket == "":
		return nil, ErrDestinationEmpty
	}

	return &Orchestrator{deps: deps}, nil
}

// run is the state owned by a single invocation.
type run struct {
	event    Event
	result   Result
	document core.SourceDocument
	body     string
	config   profile.Configuration
	audio    []byte
}

// Run processes one event to completion and returns its outcome. It never panics on
// upstream errors and never stores partial output.
func (o *Orchestrator) Run(ctx context.Context, event Event) Result {
	current := &run{
		event: event,
		result: Result{
			RunID:             uuid.NewString(),
			SourceBucket:      event.Bucket,
			SourceName:        event.Name,
			DestinationBucket: o.deps.DestinationBucket,
			States:            []State{StateReceived},
		},
	}

	o.deps.Log.Info(logFmtRunStarted, current.result.RunID, event.Bucket, event.Name)

	state := StateReceived

	for state != StateDone {
		next, failure := o.advance(ctx, state, current)
		if failure != nil {
			failure.State = state
			current.result.Failure = failure
			current.result.States = append(current.result.States, StateFailed)
			o.deps.Log.Error(logFmtRunFailed, current.result.RunID, failure)

			return current.result
		}

		o.deps.Log.Info(logFmtTransition, current.result.RunID, state, next)
		current.result.States = append(current.result.States, next)
		state = next
	}

	o.deps.Log.Info(
		logFmtRunCompleted,
		current.result.RunID,
		current.result.DestinationBucket,
		current.result.DestinationName,
		current.result.AudioBytes,
		current.result.Translated,
	)

	return current.result
}

// advance executes the step that leaves state and returns the state it reaches.
func (o *Orchestrator) advance(ctx context.Context, state State, current *run) (State, *Failure) {
	switch state {
	case StateReceived:
		return o.parse(ctx, current)
	case StateParsed:
		return o.translate(ctx, current)
	case StateTranslated, StateSkipTranslation:
		return o.synthesize(ctx, current)
	case StateSynthesized:
		return o.store(ctx, current)
	case StateStored:
		return StateDone, nil
	}

	// Run never advances from Done or Failed.
	return StateFailed, newFailure(KindInvalidState, fmt.Errorf("%w: %s", ErrUnexpectedState, state))
}

// parse reads the source object, splits off the header and resolves the configuration.
func (o *Orchestrator) parse(ctx context.Context, current *run) (State, *Failure) {
	source, err := o.deps.Buckets.Open(ctx, current.event.Bucket)
	if err != nil {
		return StateFailed, newFailure(KindStorageReadFailed, fmt.Errorf("failed to open source bucket: %w", err))
	}

	raw, err := source.Download(ctx, current.event.Name)
	if err != nil {
		return StateFailed, newFailure(KindStorageReadFailed, err)
	}

	current.document = core.SourceDocument{
		Bucket: current.event.Bucket,
		Name:   current.event.Name,
		Text:   string(raw),
	}

	headers, body := header.Parse(current.document.Text)
	current.body = body
	current.config = profile.Resolve(headers, o.deps.Defaults)
	current.result.VoiceID = current.config.VoiceID
	current.result.TargetLanguage = current.config.TargetLanguage

	o.deps.Log.Info(
		logFmtConfigResolved,
		current.result.RunID,
		current.config.VoiceID,
		current.config.TargetLanguage,
		current.config.Tuning.Stability,
		current.config.Tuning.Similarity,
		current.config.Tuning.Style,
	)

	return StateParsed, nil
}

// translate replaces the body with its translation when a target language was
// requested. A failed translation is fatal; the untranslated body is never narrated
// under a translated name.
func (o *Orchestrator) translate(ctx context.Context, current *run) (State, *Failure) {
	if !current.config.WantsTranslation() {
		return StateSkipTranslation, nil
	}

	if o.deps.Translator == nil {
		return StateFailed, newFailure(KindTranslationFailed, ErrTranslatorUnavailable)
	}

	translated, err := o.deps.Translator.Translate(
		ctx,
		current.body,
		current.config.SourceLanguage,
		current.config.TargetLanguage,
	)
	if err != nil {
		return StateFailed, newFailure(KindTranslationFailed, err)
	}

	current.body = translated
	current.result.Translated = true

	return StateTranslated, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, current *run) (State, *Failure) {
	credential, err := o.deps.Credentials.Get(ctx)
	if err != nil {
		return StateFailed, newFailure(KindCredentialUnavailable, err)
	}

	audio, err := o.deps.Synthesizer.Synthesize(
		ctx,
		current.body,
		current.config.VoiceID,
		current.config.Tuning,
		credential,
	)
	if err != nil {
		return StateFailed, newFailure(KindSynthesisFailed, err)
	}

	current.audio = audio
	current.result.AudioBytes = len(audio)

	return StateSynthesized, nil
}

func (o *Orchestrator) store(ctx context.Context, current *run) (State, *Failure) {
	destinationName := naming.DeriveName(
		current.document.Name,
		current.config.TargetLanguage,
		current.result.Translated,
	)

	destination, err := o.deps.Buckets.Open(ctx, o.deps.DestinationBucket)
	if err != nil {
		return StateFailed, newFailure(KindStorageWriteFailed, fmt.Errorf("failed to open destination bucket: %w", err))
	}

	err = destination.Upload(ctx, destinationName, current.audio, core.ContentTypeAudio)
	if err != nil {
		return StateFailed, newFailure(KindStorageWriteFailed, err)
	}

	current.result.DestinationName = destinationName

	return StateStored, nil
}
