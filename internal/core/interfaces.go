// Package core defines the core business types and capability interfaces for the
// narration service.
package core

import "context"

// ContentTypeAudio is the content type stored alongside every produced audio object.
const ContentTypeAudio = "audio/mpeg"

// ObjectInfo describes a stored object as returned by ObjectStore.List.
type ObjectInfo struct {
	Name string
	Size uint64
}

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	List(ctx context.Context) ([]ObjectInfo, error)
}

// BucketOpener resolves a named container to an ObjectStore.
type BucketOpener interface {
	Open(ctx context.Context, bucket string) (ObjectStore, error)
}

// SourceDocument is the raw text of one source object. It is never modified after
// it has been read.
type SourceDocument struct {
	Bucket string
	Name   string
	Text   string
}

// Tuning is the voice expressiveness profile. Every value lies in [0, 1].
type Tuning struct {
	Stability  float64
	Similarity float64
	Style      float64
}

// SecretFetcher returns the value of a named secret from an external secret store.
type SecretFetcher interface {
	Fetch(ctx context.Context, name string) (string, error)
}

// CredentialSource supplies an API credential, typically from a credential.Cache.
type CredentialSource interface {
	Get(ctx context.Context) (string, error)
}

// Translator converts text from one language to another.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// Synthesizer converts text to encoded audio using the given voice, tuning and API
// credential.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID string, tuning Tuning, credential string) ([]byte, error)
}
