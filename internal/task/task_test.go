package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/model"
)

type fakeTask struct {
	records []Record
	fail    map[int]error // record index -> error to return
}

func (f *fakeTask) Records(ctx context.Context) ([]Record, error) { return f.records, nil }

func (f *fakeTask) Process(ctx context.Context, rec Record) (any, error) {
	idx := rec.(int)
	if err, ok := f.fail[idx]; ok {
		return nil, err
	}
	return nil, nil
}

func waitForTerminal(t *testing.T, m *Manager, id uint64) model.TaskHandle {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if h.Status != model.TaskRunning {
			return h
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %d did not reach a terminal state in time", id)
	return model.TaskHandle{}
}

func TestManagerRunsTaskToCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, 2)
	ft := &fakeTask{records: []Record{1, 2, 3, 4}}

	id, err := m.Submit(ft, 2)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	h := waitForTerminal(t, m, id)
	if h.Status != model.TaskComplete {
		t.Fatalf("expected TaskComplete, got %+v", h)
	}
	if h.Completed != 4 || h.Total != 4 || h.Skipped != 0 {
		t.Fatalf("unexpected counters: %+v", h)
	}
}

func TestManagerSkipsSkippableErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, 1)
	ft := &fakeTask{
		records: []Record{1, 2, 3},
		fail: map[int]error{
			2: apierr.New(apierr.DecoderFailure, "decode", errors.New("bad tiff")),
		},
	}

	id, err := m.Submit(ft, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	h := waitForTerminal(t, m, id)
	if h.Status != model.TaskComplete {
		t.Fatalf("a skippable error must not fail the task, got %+v", h)
	}
	if h.Skipped != 1 || h.Completed != 2 {
		t.Fatalf("unexpected counters: %+v", h)
	}
}

func TestManagerFailsOnStorageFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, 1)
	ft := &fakeTask{
		records: []Record{1, 2},
		fail: map[int]error{
			1: apierr.New(apierr.StorageFailure, "write", errors.New("disk full")),
		},
	}

	id, err := m.Submit(ft, 1)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	h := waitForTerminal(t, m, id)
	if h.Status != model.TaskFailure {
		t.Fatalf("expected TaskFailure on a non-skippable error, got %+v", h)
	}
}

func TestManagerGetUnknownTaskIsNotFound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(ctx, 1)
	if _, err := m.Get(999); apierr.Of(err) != apierr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
