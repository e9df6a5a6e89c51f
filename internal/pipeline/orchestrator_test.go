package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/credential"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/book-expert/narration-service/internal/profile"
	"github.com/book-expert/narration-service/internal/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sourceBucket      = "SCRIPTS"
	destinationBucket = "AUDIO"
	epsilon           = 1e-9
)

var (
	errMockDownload  = errors.New("mock download error")
	errMockUpload    = errors.New("mock upload error")
	errMockTranslate = errors.New("mock translate error")
	errMockSecret    = errors.New("mock secret store error")
)

type memoryStore struct {
	mutex        sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	downloadErr  error
	uploadErr    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.downloadErr != nil {
		return nil, m.downloadErr
	}

	data, ok := m.objects[key]
	if !ok {
		return nil, errMockDownload
	}

	return data, nil
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.uploadErr != nil {
		return m.uploadErr
	}

	m.objects[key] = data
	m.contentTypes[key] = contentType

	return nil
}

func (m *memoryStore) List(_ context.Context) ([]core.ObjectInfo, error) {
	return nil, nil
}

type memoryBuckets map[string]*memoryStore

func (b memoryBuckets) Open(_ context.Context, bucket string) (core.ObjectStore, error) {
	store, ok := b[bucket]
	if !ok {
		return nil, errMockDownload
	}

	return store, nil
}

type mockTranslator struct {
	calls      int
	text       string
	sourceLang string
	targetLang string
	err        error
}

func (m *mockTranslator) Translate(_ context.Context, text, sourceLang, targetLang string) (string, error) {
	m.calls++
	m.text = text
	m.sourceLang = sourceLang
	m.targetLang = targetLang

	if m.err != nil {
		return "", m.err
	}

	return "[" + targetLang + "] " + text, nil
}

type mockSynthesizer struct {
	calls      int
	text       string
	voiceID    string
	tuning     core.Tuning
	credential string
	err        error
}

func (m *mockSynthesizer) Synthesize(
	_ context.Context,
	text, voiceID string,
	tuning core.Tuning,
	credential string,
) ([]byte, error) {
	m.calls++
	m.text = text
	m.voiceID = voiceID
	m.tuning = tuning
	m.credential = credential

	if m.err != nil {
		return nil, m.err
	}

	return []byte("mp3:" + text), nil
}

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) Fetch(_ context.Context, _ string) (string, error) {
	f.calls++

	if f.err != nil {
		return "", f.err
	}

	return "xi-secret", nil
}

type fixture struct {
	orchestrator *pipeline.Orchestrator
	source       *memoryStore
	destination  *memoryStore
	translator   *mockTranslator
	synthesizer  *mockSynthesizer
	fetcher      *countingFetcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testLogger.Close() })

	fix := &fixture{
		source:      newMemoryStore(),
		destination: newMemoryStore(),
		translator:  &mockTranslator{},
		synthesizer: &mockSynthesizer{},
		fetcher:     &countingFetcher{},
	}

	cache, err := credential.New(fix.fetcher, "elevenlabs-api-key")
	require.NoError(t, err)

	fix.orchestrator, err = pipeline.New(pipeline.Dependencies{
		Buckets:           memoryBuckets{sourceBucket: fix.source, destinationBucket: fix.destination},
		DestinationBucket: destinationBucket,
		Translator:        fix.translator,
		Synthesizer:       fix.synthesizer,
		Credentials:       cache,
		Defaults:          profile.Defaults{SourceLanguage: "en", VoiceID: ""},
		Log:               testLogger,
	})
	require.NoError(t, err)

	return fix
}

func (f *fixture) put(name, text string) pipeline.Event {
	f.source.objects[name] = []byte(text)

	return pipeline.Event{Bucket: sourceBucket, Name: name}
}

func TestRun_NoHeader(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	result := fix.orchestrator.Run(context.Background(), fix.put("episode3.txt", "Hi there."))

	require.True(t, result.Succeeded(), "unexpected failure: %v", result.Err())
	require.NoError(t, result.Err())
	assert.Equal(t, 0, fix.translator.calls)
	assert.Equal(t, 1, fix.synthesizer.calls)
	assert.Equal(t, "Hi there.", fix.synthesizer.text)
	assert.Equal(t, profile.DefaultVoiceID, fix.synthesizer.voiceID)
	assert.Equal(t, core.Tuning{Stability: 0.5, Similarity: 0.75, Style: 0}, fix.synthesizer.tuning)
	assert.Equal(t, "xi-secret", fix.synthesizer.credential)

	assert.Equal(t, "episode3.mp3", result.DestinationName)
	assert.Equal(t, destinationBucket, result.DestinationBucket)
	assert.False(t, result.Translated)
	assert.Equal(t, len("mp3:Hi there."), result.AudioBytes)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []pipeline.State{
		pipeline.StateReceived,
		pipeline.StateParsed,
		pipeline.StateSkipTranslation,
		pipeline.StateSynthesized,
		pipeline.StateStored,
		pipeline.StateDone,
	}, result.States)

	assert.Equal(t, []byte("mp3:Hi there."), fix.destination.objects["episode3.mp3"])
	assert.Equal(t, "audio/mpeg", fix.destination.contentTypes["episode3.mp3"])
}

func TestRun_FullHeaderTranslates(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	script := "lang: es\nvoice: V\nstability: 40\nsimilarity: 80\nstyle: 30\n---\nWelcome back."

	result := fix.orchestrator.Run(context.Background(), fix.put("shows/episode4.txt", script))

	require.True(t, result.Succeeded(), "unexpected failure: %v", result.Err())
	assert.Equal(t, 1, fix.translator.calls)
	assert.Equal(t, "Welcome back.", fix.translator.text)
	assert.Equal(t, "en", fix.translator.sourceLang)
	assert.Equal(t, "es", fix.translator.targetLang)

	assert.Equal(t, "[es] Welcome back.", fix.synthesizer.text)
	assert.Equal(t, "V", fix.synthesizer.voiceID)
	assert.InDelta(t, 0.40, fix.synthesizer.tuning.Stability, epsilon)
	assert.InDelta(t, 0.80, fix.synthesizer.tuning.Similarity, epsilon)
	assert.InDelta(t, 0.30, fix.synthesizer.tuning.Style, epsilon)

	assert.Equal(t, "episode4_es.mp3", result.DestinationName)
	assert.True(t, result.Translated)
	assert.Equal(t, "es", result.TargetLanguage)
	assert.Equal(t, "V", result.VoiceID)
	assert.Contains(t, result.States, pipeline.StateTranslated)
	assert.Contains(t, fix.destination.objects, "episode4_es.mp3")
}

func TestRun_SourceLanguageSkipsTranslation(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	result := fix.orchestrator.Run(context.Background(), fix.put("ep.txt", "lang: en\n---\nHello"))

	require.True(t, result.Succeeded())
	assert.Equal(t, 0, fix.translator.calls)
	assert.False(t, result.Translated)
	assert.Equal(t, "ep.mp3", result.DestinationName)
}

func TestRun_SynthesisFailureStoresNothing(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.synthesizer.err = &synth.StatusError{StatusCode: 401, Body: `{"detail":"bad key"}`, Detail: "bad key"}

	result := fix.orchestrator.Run(context.Background(), fix.put("ep.txt", "Hello"))

	require.False(t, result.Succeeded())
	require.NotNil(t, result.Failure)
	assert.Equal(t, pipeline.KindSynthesisFailed, result.Failure.Kind)
	assert.Equal(t, pipeline.StateSkipTranslation, result.Failure.State)
	assert.Equal(t, 401, result.Failure.StatusCode)
	assert.Contains(t, result.Failure.Detail, "bad key")
	assert.Equal(t, pipeline.StateFailed, result.States[len(result.States)-1])
	assert.Empty(t, fix.destination.objects)
	assert.Empty(t, result.DestinationName)

	var statusErr *synth.StatusError

	require.ErrorAs(t, result.Err(), &statusErr)
	assert.Equal(t, 401, statusErr.StatusCode)

	var failure *pipeline.Failure

	require.ErrorAs(t, result.Err(), &failure)
	assert.Equal(t, pipeline.KindSynthesisFailed, failure.Kind)
}

func TestRun_TranslationFailureIsFatal(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.translator.err = errMockTranslate

	result := fix.orchestrator.Run(context.Background(), fix.put("ep.txt", "lang: fr\n---\nHello"))

	require.False(t, result.Succeeded())
	assert.Equal(t, pipeline.KindTranslationFailed, result.Failure.Kind)
	require.ErrorIs(t, result.Err(), errMockTranslate)
	assert.Equal(t, 0, fix.synthesizer.calls)
	assert.Equal(t, 0, fix.fetcher.calls)
	assert.Empty(t, fix.destination.objects)
}

func TestRun_MissingTranslator(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	source := newMemoryStore()
	source.objects["ep.txt"] = []byte("lang: de\n---\nHello")

	cache, err := credential.New(&countingFetcher{}, "elevenlabs-api-key")
	require.NoError(t, err)

	orchestrator, err := pipeline.New(pipeline.Dependencies{
		Buckets:           memoryBuckets{sourceBucket: source, destinationBucket: newMemoryStore()},
		DestinationBucket: destinationBucket,
		Translator:        nil,
		Synthesizer:       &mockSynthesizer{},
		Credentials:       cache,
		Defaults:          profile.Defaults{SourceLanguage: "", VoiceID: ""},
		Log:               testLogger,
	})
	require.NoError(t, err)

	result := orchestrator.Run(context.Background(), pipeline.Event{Bucket: sourceBucket, Name: "ep.txt"})

	require.False(t, result.Succeeded())
	assert.Equal(t, pipeline.KindTranslationFailed, result.Failure.Kind)
	require.ErrorIs(t, result.Err(), pipeline.ErrTranslatorUnavailable)
}

func TestRun_CredentialUnavailableThenRecovers(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.fetcher.err = errMockSecret
	event := fix.put("ep.txt", "Hello")

	result := fix.orchestrator.Run(context.Background(), event)

	require.False(t, result.Succeeded())
	assert.Equal(t, pipeline.KindCredentialUnavailable, result.Failure.Kind)
	assert.Equal(t, 0, fix.synthesizer.calls)
	assert.Empty(t, fix.destination.objects)

	fix.fetcher.err = nil

	result = fix.orchestrator.Run(context.Background(), event)
	require.True(t, result.Succeeded())
	assert.Equal(t, 2, fix.fetcher.calls)
}

func TestRun_WarmRunsFetchCredentialOnce(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	event := fix.put("ep.txt", "Hello")

	for range 5 {
		result := fix.orchestrator.Run(context.Background(), event)
		require.True(t, result.Succeeded())
		assert.Equal(t, "ep.mp3", result.DestinationName)
	}

	assert.Equal(t, 1, fix.fetcher.calls)
	assert.Len(t, fix.destination.objects, 1)
}

func TestRun_StorageReadFailures(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)

	result := fix.orchestrator.Run(context.Background(), pipeline.Event{Bucket: sourceBucket, Name: "missing.txt"})
	require.False(t, result.Succeeded())
	assert.Equal(t, pipeline.KindStorageReadFailed, result.Failure.Kind)
	assert.Equal(t, pipeline.StateReceived, result.Failure.State)
	assert.Equal(t, []pipeline.State{pipeline.StateReceived, pipeline.StateFailed}, result.States)

	result = fix.orchestrator.Run(context.Background(), pipeline.Event{Bucket: "NOPE", Name: "ep.txt"})
	require.False(t, result.Succeeded())
	assert.Equal(t, pipeline.KindStorageReadFailed, result.Failure.Kind)
	assert.Equal(t, 0, fix.synthesizer.calls)
}

func TestRun_StorageWriteFailure(t *testing.T) {
	t.Parallel()

	fix := newFixture(t)
	fix.destination.uploadErr = errMockUpload

	result := fix.orchestrator.Run(context.Background(), fix.put("ep.txt", "Hello"))

	require.False(t, result.Succeeded())
	assert.Equal(t, pipeline.KindStorageWriteFailed, result.Failure.Kind)
	assert.Equal(t, pipeline.StateSynthesized, result.Failure.State)
	require.ErrorIs(t, result.Err(), errMockUpload)
	assert.Equal(t, 1, fix.synthesizer.calls)
	assert.Empty(t, result.DestinationName)
}

func TestNew_ValidatesDependencies(t *testing.T) {
	t.Parallel()

	testLogger, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)

	cache, err := credential.New(&countingFetcher{}, "k")
	require.NoError(t, err)

	valid := pipeline.Dependencies{
		Buckets:           memoryBuckets{},
		DestinationBucket: destinationBucket,
		Translator:        nil,
		Synthesizer:       &mockSynthesizer{},
		Credentials:       cache,
		Defaults:          profile.Defaults{SourceLanguage: "", VoiceID: ""},
		Log:               testLogger,
	}

	_, err = pipeline.New(valid)
	require.NoError(t, err)

	noBuckets := valid
	noBuckets.Buckets = nil
	_, err = pipeline.New(noBuckets)
	require.ErrorIs(t, err, pipeline.ErrBucketsNil)

	noSynth := valid
	noSynth.Synthesizer = nil
	_, err = pipeline.New(noSynth)
	require.ErrorIs(t, err, pipeline.ErrSynthesizerNil)

	noDestination := valid
	noDestination.DestinationBucket = ""
	_, err = pipeline.New(noDestination)
	require.ErrorIs(t, err, pipeline.ErrDestinationEmpty)
}
