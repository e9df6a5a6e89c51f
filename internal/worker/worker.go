// Package worker subscribes to object-created notifications on NATS and runs the
// narration pipeline for each of them.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const defaultRunTimeout = 5 * time.Minute

var (
	// ErrConnectionNil indicates that no NATS connection was supplied.
	ErrConnectionNil = errors.New("nats connection cannot be nil")
	// ErrRunnerNil indicates that no pipeline runner was supplied.
	ErrRunnerNil = errors.New("pipeline runner cannot be nil")
	// ErrSubjectEmpty indicates that the trigger subject is empty.
	ErrSubjectEmpty = errors.New("trigger subject cannot be empty")
	// ErrObjectNameEmpty indicates an event that does not name a source object.
	ErrObjectNameEmpty = errors.New("event object name cannot be empty")
	// ErrBucketUnknown indicates an event without a bucket and no default bucket configured.
	ErrBucketUnknown = errors.New("event bucket is empty and no default bucket is configured")
)

// TextObjectCreatedEvent announces a new narration script in an object bucket.
type TextObjectCreatedEvent struct {
	Header     events.EventHeader `json:"header"`
	Bucket     string             `json:"bucket"`
	ObjectName string             `json:"object_name"`
}

// NarrationCompletedEvent reports the outcome of one pipeline run. It is sent as the
// reply to a request and, when configured, published on the completion subject.
type NarrationCompletedEvent struct {
	Header events.EventHeader `json:"header"`
	Result pipeline.Result    `json:"result"`
}

// Runner executes one pipeline run.
type Runner interface {
	Run(ctx context.Context, event pipeline.Event) pipeline.Result
}

// Settings controls where the worker listens and how long each run may take.
type Settings struct {
	Subject          string
	QueueGroup       string
	CompletedSubject string
	DefaultBucket    string
	RunTimeout       time.Duration
}

// NatsWorker listens for object-created events on a NATS subject and narrates them.
type NatsWorker struct {
	natsConnection *nats.Conn
	settings       Settings
	runner         Runner
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	settings Settings,
	runner Runner,
	log *logger.Logger,
) (*NatsWorker, error) {
	switch {
	case natsConnection == nil:
		return nil, ErrConnectionNil
	case runner == nil:
		return nil, ErrRunnerNil
	case settings.Subject == "":
		return nil, ErrSubjectEmpty
	}

	if settings.RunTimeout <= 0 {
		settings.RunTimeout = defaultRunTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		settings:       settings,
		runner:         runner,
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is cancelled. In-flight messages are
// drained before it returns.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	if w.settings.QueueGroup != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.settings.Subject, w.settings.QueueGroup, w.handleMessage)
	} else {
		sub, err = w.natsConnection.Subscribe(w.settings.Subject, w.handleMessage)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.settings.Subject, err)
	}

	w.log.Info("Listening on %s (queue group %q)", w.settings.Subject, w.settings.QueueGroup)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.settings.RunTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	result := w.runner.Run(ctx, pipeline.Event{Bucket: event.Bucket, Name: event.ObjectName})
	if !result.Succeeded() {
		w.log.Error("Narration of %s/%s failed for workflow %s: %v",
			event.Bucket, event.ObjectName, event.Header.WorkflowID, result.Err())
	}

	completed := &NarrationCompletedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: event.Header.WorkflowID,
			EventID:    uuid.NewString(),
			UserID:     event.Header.UserID,
			TenantID:   event.Header.TenantID,
		},
		Result: result,
	}

	err = w.publishCompletedEvent(msg, completed)
	if err != nil {
		w.log.Error("Failed to publish completion for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// publishCompletedEvent replies to the request, if any, and publishes on the
// completion subject, if configured.
func (w *NatsWorker) publishCompletedEvent(msg *nats.Msg, completed *NarrationCompletedEvent) error {
	data, err := json.Marshal(completed)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	if msg.Reply != "" {
		err = msg.Respond(data)
		if err != nil {
			return fmt.Errorf("failed to publish reply event: %w", err)
		}
	}

	if w.settings.CompletedSubject != "" {
		err = w.natsConnection.Publish(w.settings.CompletedSubject, data)
		if err != nil {
			return fmt.Errorf("failed to publish to %s: %w", w.settings.CompletedSubject, err)
		}
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*TextObjectCreatedEvent, error) {
	var event TextObjectCreatedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.ObjectName == "" {
		return nil, ErrObjectNameEmpty
	}

	if event.Bucket == "" {
		if w.settings.DefaultBucket == "" {
			return nil, ErrBucketUnknown
		}

		event.Bucket = w.settings.DefaultBucket
	}

	if event.Header.WorkflowID == "" {
		event.Header.WorkflowID = uuid.NewString()
	}

	return &event, nil
}
