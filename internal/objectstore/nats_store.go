// Package objectstore provides NATS- and directory-backed implementations of the
// ObjectStore and BucketOpener interfaces.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/book-expert/narration-service/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const headerContentType = "Content-Type"

// NatsObjectStore implements the core.ObjectStore interface using NATS JetStream.
type NatsObjectStore struct {
	bucket string
	store  nats.ObjectStore
}

// New creates the bucket if needed, or binds to it if it already exists.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Storage for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		// An existing bucket, possibly with a different config, is still usable.
		var bindErr error

		store, bindErr = jetstreamContext.ObjectStore(bucketName)
		if bindErr != nil {
			if errors.Is(err, jetstream.ErrBucketExists) {
				return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, bindErr)
			}

			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Bucket returns the bucket name.
func (n *NatsObjectStore) Bucket() string {
	return n.bucket
}

// Download retrieves an object from the NATS object store.
func (n *NatsObjectStore) Download(_ context.Context, key string) ([]byte, error) {
	obj, err := n.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}

// Upload saves an object, replacing any object with the same key. The content type
// is recorded in the object headers.
func (n *NatsObjectStore) Upload(_ context.Context, key string, data []byte, contentType string) error {
	headers := nats.Header{}
	if contentType != "" {
		headers.Set(headerContentType, contentType)
	}

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     headers,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return nil
}

// ContentType returns the content type recorded for key.
func (n *NatsObjectStore) ContentType(_ context.Context, key string) (string, error) {
	info, err := n.store.GetInfo(key)
	if err != nil {
		return "", fmt.Errorf("failed to get info for object '%s' in bucket '%s': %w", key, n.bucket, err)
	}

	return info.Headers.Get(headerContentType), nil
}

// List returns the live objects in the bucket sorted by name.
func (n *NatsObjectStore) List(_ context.Context) ([]core.ObjectInfo, error) {
	infos, err := n.store.List()
	if err != nil {
		if errors.Is(err, nats.ErrNoObjectsFound) {
			return []core.ObjectInfo{}, nil
		}

		return nil, fmt.Errorf("failed to list bucket '%s': %w", n.bucket, err)
	}

	objects := make([]core.ObjectInfo, 0, len(infos))

	for _, info := range infos {
		if info.Deleted {
			continue
		}

		objects = append(objects, core.ObjectInfo{Name: info.Name, Size: info.Size})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })

	return objects, nil
}

// NatsBuckets opens JetStream object store buckets on demand and reuses them.
type NatsBuckets struct {
	jetstreamContext nats.JetStreamContext
	mutex            sync.Mutex
	stores           map[string]*NatsObjectStore
}

// NewNatsBuckets creates a BucketOpener over jetstreamContext.
func NewNatsBuckets(jetstreamContext nats.JetStreamContext) *NatsBuckets {
	return &NatsBuckets{
		jetstreamContext: jetstreamContext,
		stores:           make(map[string]*NatsObjectStore),
	}
}

// Open returns the store for bucket, creating it on first use.
func (b *NatsBuckets) Open(_ context.Context, bucket string) (core.ObjectStore, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if store, ok := b.stores[bucket]; ok {
		return store, nil
	}

	store, err := New(b.jetstreamContext, bucket)
	if err != nil {
		return nil, err
	}

	b.stores[bucket] = store

	return store, nil
}
