// Package batch narrates every script in a bucket, one after another.
package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/narration-service/internal/core"
	"github.com/book-expert/narration-service/internal/pipeline"
	"github.com/dustin/go-humanize"
)

// ScriptExtension selects the objects a batch narrates.
const ScriptExtension = ".txt"

// Static errors.
var (
	ErrBucketsNil  = errors.New("bucket opener cannot be nil")
	ErrPipelineNil = errors.New("pipeline cannot be nil")
	ErrLoggerNil   = errors.New("logger cannot be nil")
)

// Pipeline executes one narration run.
type Pipeline interface {
	Run(ctx context.Context, event pipeline.Event) pipeline.Result
}

// Summary collects the outcome of every run in a batch.
type Summary struct {
	Results   []pipeline.Result
	Succeeded int
	Failed    int
}

// Failures returns the results that did not reach Done.
func (s Summary) Failures() []pipeline.Result {
	var failed []pipeline.Result

	for _, result := range s.Results {
		if !result.Succeeded() {
			failed = append(failed, result)
		}
	}

	return failed
}

// Runner walks a bucket and hands each script to a Pipeline.
type Runner struct {
	buckets  core.BucketOpener
	pipeline Pipeline
	log      *logger.Logger
}

// New creates a Runner.
func New(buckets core.BucketOpener, narration Pipeline, log *logger.Logger) (*Runner, error) {
	switch {
	case buckets == nil:
		return nil, ErrBucketsNil
	case narration == nil:
		return nil, ErrPipelineNil
	case log == nil:
		return nil, ErrLoggerNil
	}

	return &Runner{buckets: buckets, pipeline: narration, log: log}, nil
}

// Run narrates every script in bucket in name order. A failed run is recorded and the
// batch moves on; only a bucket that cannot be listed aborts it. Cancelling ctx stops
// the batch before the next script.
func (r *Runner) Run(ctx context.Context, bucket string) (Summary, error) {
	store, err := r.buckets.Open(ctx, bucket)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to open bucket %s: %w", bucket, err)
	}

	objects, err := store.List(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list bucket %s: %w", bucket, err)
	}

	scripts := make([]core.ObjectInfo, 0, len(objects))

	for _, object := range objects {
		if strings.EqualFold(extension(object.Name), ScriptExtension) {
			scripts = append(scripts, object)
		}
	}

	r.log.Info("Found %d scripts in %s", len(scripts), bucket)

	summary := Summary{Results: make([]pipeline.Result, 0, len(scripts)), Succeeded: 0, Failed: 0}

	for index, script := range scripts {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return summary, fmt.Errorf("batch interrupted after %d of %d scripts: %w", index, len(scripts), ctxErr)
		}

		r.log.Info("[%d/%d] %s (%s)", index+1, len(scripts), script.Name, humanize.Bytes(script.Size))

		result := r.pipeline.Run(ctx, pipeline.Event{Bucket: bucket, Name: script.Name})
		summary.Results = append(summary.Results, result)

		if !result.Succeeded() {
			summary.Failed++
			r.log.Warn("[%d/%d] %s failed: %v", index+1, len(scripts), script.Name, result.Err())

			continue
		}

		summary.Succeeded++
		r.log.Info("[%d/%d] %s -> %s (%s)", index+1, len(scripts), script.Name,
			result.DestinationName, humanize.Bytes(uint64(result.AudioBytes)))
	}

	r.log.Info("Batch complete: %d succeeded, %d failed", summary.Succeeded, summary.Failed)

	return summary, nil
}

func extension(name string) string {
	dot := strings.LastIndex(name, ".")
	if dot < 0 || dot < strings.LastIndexAny(name, `/\`) {
		return ""
	}

	return name[dot:]
}
