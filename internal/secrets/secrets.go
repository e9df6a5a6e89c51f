// Package secrets provides SecretFetcher implementations backed by a NATS JetStream
// key-value bucket or by environment variables.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
)

// Static errors.
var (
	ErrSecretNotFound = errors.New("secret not found")
)

// KVFetcher reads secrets from a JetStream key-value bucket.
type KVFetcher struct {
	bucket string
	kv     nats.KeyValue
}

// NewKVFetcher creates the bucket if needed, or binds to it if it already exists.
func NewKVFetcher(jetstreamContext nats.JetStreamContext, bucketName string) (*KVFetcher, error) {
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: "Credentials for the narration service.",
		History:     1,
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		var bindErr error

		kv, bindErr = jetstreamContext.KeyValue(bucketName)
		if bindErr != nil {
			return nil, fmt.Errorf("failed to create secrets bucket '%s': %w", bucketName, err)
		}
	}

	return &KVFetcher{bucket: bucketName, kv: kv}, nil
}

// Fetch returns the latest value stored under name.
func (f *KVFetcher) Fetch(_ context.Context, name string) (string, error) {
	entry, err := f.kv.Get(name)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return "", fmt.Errorf("%w: '%s' in bucket '%s'", ErrSecretNotFound, name, f.bucket)
		}

		return "", fmt.Errorf("failed to read secret '%s' from bucket '%s': %w", name, f.bucket, err)
	}

	return string(entry.Value()), nil
}

// Store writes value under name. It is used by provisioning tooling and tests.
func (f *KVFetcher) Store(_ context.Context, name, value string) error {
	_, err := f.kv.PutString(name, value)
	if err != nil {
		return fmt.Errorf("failed to store secret '%s' in bucket '%s': %w", name, f.bucket, err)
	}

	return nil
}

// EnvFetcher reads secrets from environment variables. The variable name is the
// secret name upper-cased with '-', '.' and '/' replaced by '_', so
// "elevenlabs-api-key" is read from ELEVENLABS_API_KEY.
type EnvFetcher struct {
	lookup func(string) (string, bool)
}

// NewEnvFetcher creates a fetcher over the process environment.
func NewEnvFetcher() *EnvFetcher {
	return &EnvFetcher{lookup: os.LookupEnv}
}

// NewEnvFetcherWithLookup creates a fetcher over a custom lookup function.
func NewEnvFetcherWithLookup(lookup func(string) (string, bool)) *EnvFetcher {
	return &EnvFetcher{lookup: lookup}
}

// Fetch returns the value of the environment variable derived from name.
func (f *EnvFetcher) Fetch(_ context.Context, name string) (string, error) {
	variable := EnvName(name)

	value, ok := f.lookup(variable)
	if !ok || value == "" {
		return "", fmt.Errorf("%w: environment variable %s is not set", ErrSecretNotFound, variable)
	}

	return value, nil
}

var envNameReplacer = strings.NewReplacer("-", "_", ".", "_", "/", "_")

// EnvName returns the environment variable consulted for the secret called name.
func EnvName(name string) string {
	return strings.ToUpper(envNameReplacer.Replace(name))
}
