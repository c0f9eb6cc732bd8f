// Package task implements the generic background task engine (spec §4.4):
// a bounded worker pool running Task[R] jobs, each tracked by a TaskHandle
// with atomic progress counters, registered in a Manager keyed by id.
package task

import (
	"context"
	"sync/atomic"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/model"
)

// Record is one unit of work a Task processes; its meaning (an image row,
// a window cell, a file path) is defined entirely by the Task implementation.
type Record any

// Task is anything the worker pool can run to completion, reporting
// progress onto the handle it's given. R is the per-record result type,
// unused by the engine itself but kept so callers can type concrete tasks.
type Task[R any] interface {
	// Records returns the work items to process, or an error if the task
	// cannot even enumerate its input (a fatal, not skippable, failure).
	Records(ctx context.Context) ([]Record, error)

	// Process handles one record. A Skippable error (apierr.Skippable)
	// increments the handle's skip count and continues; any other error
	// aborts the task with TaskFailure, and records not yet started are
	// not processed.
	Process(ctx context.Context, rec Record) (R, error)
}

// Handle is the live, atomically-updated progress of one running task.
// Snapshot() produces the model.TaskHandle returned over RPC.
type Handle struct {
	id        uint64
	completed atomic.Uint64
	skipped   atomic.Uint64
	total     atomic.Uint64
	status    atomic.Value // model.TaskStatus
	message   atomic.Value // string
}

func newHandle(id uint64) *Handle {
	h := &Handle{id: id}
	h.status.Store(model.TaskRunning)
	h.message.Store("")
	return h
}

// Snapshot returns a point-in-time copy suitable for RPC responses.
func (h *Handle) Snapshot() model.TaskHandle {
	return model.TaskHandle{
		ID:        h.id,
		Completed: h.completed.Load(),
		Skipped:   h.skipped.Load(),
		Total:     h.total.Load(),
		Status:    h.status.Load().(model.TaskStatus),
		Message:   h.message.Load().(string),
	}
}

func (h *Handle) setTotal(n int)    { h.total.Store(uint64(n)) }
func (h *Handle) incCompleted()     { h.completed.Add(1) }
func (h *Handle) incSkipped()       { h.skipped.Add(1) }
func (h *Handle) finish(err error) {
	if err != nil {
		h.status.Store(model.TaskFailure)
		h.message.Store(err.Error())
		return
	}
	h.status.Store(model.TaskComplete)
}

// run executes t against a bounded worker pool of width workers, updating
// handle as records complete or are skipped. It blocks until every record
// has been processed, ctx is canceled, or a non-skippable error has ended
// the task (records not yet started at that point are discarded).
func run[R any](ctx context.Context, t Task[R], handle *Handle, workers int) {
	records, err := t.Records(ctx)
	if err != nil {
		handle.finish(err)
		return
	}
	handle.setTotal(len(records))

	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	results := make(chan error, len(records))

	var aborted atomic.Bool
	for _, rec := range records {
		if aborted.Load() {
			results <- nil // a fatal error already ended the task
			continue
		}
		select {
		case <-ctx.Done():
			results <- ctx.Err()
			continue
		case sem <- struct{}{}:
		}

		go func(rec Record) {
			defer func() { <-sem }()
			_, err := t.Process(ctx, rec)
			if err == nil {
				handle.incCompleted()
				results <- nil
				return
			}
			if apierr.Skippable(err) {
				handle.incSkipped()
				results <- nil
				return
			}
			aborted.Store(true)
			results <- err
		}(rec)
	}

	var fatal error
	for range records {
		if err := <-results; err != nil && fatal == nil {
			fatal = err
		}
	}
	handle.finish(fatal)
}
