package task

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/hamersaw/stip-sub000/internal/apierr"
	"github.com/hamersaw/stip-sub000/internal/model"
)

// queueCapacity bounds pending task submissions; once the queue is full,
// Submit and SubmitWithID fail with an error instead of blocking, so memory
// does not grow unboundedly under RPC load.
const queueCapacity = 256

type job struct {
	handle *Handle
	run    func(ctx context.Context)
}

// Manager runs submitted tasks on a bounded pool of dispatcher goroutines
// and keeps every Handle addressable by id for RPC status polls.
type Manager struct {
	mu      sync.RWMutex
	handles map[uint64]*Handle

	queue chan job
	wg    sync.WaitGroup
}

// NewManager starts a Manager with dispatchers workers pulling from a
// queueCapacity-deep submission queue.
func NewManager(ctx context.Context, dispatchers int) *Manager {
	if dispatchers < 1 {
		dispatchers = 1
	}
	m := &Manager{
		handles: make(map[uint64]*Handle),
		queue:   make(chan job, queueCapacity),
	}
	for i := 0; i < dispatchers; i++ {
		m.wg.Add(1)
		go m.dispatch(ctx)
	}
	return m
}

func (m *Manager) dispatch(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-m.queue:
			if !ok {
				return
			}
			j.run(ctx)
		}
	}
}

// Submit registers t and enqueues it for execution, returning its id
// immediately; the task runs asynchronously with perTaskWorkers concurrent
// record processors. The id is drawn at random (spec §4.4), the same
// policy a broadcasting node uses to mint the shared id it then hands to
// every peer via SubmitWithID.
func (m *Manager) Submit(t Task[any], perTaskWorkers int) (uint64, error) {
	return m.submit(m.randomID(), t, perTaskWorkers)
}

// randomID draws a nonzero 64-bit id not already registered.
func (m *Manager) randomID() uint64 {
	for {
		id := rand.Uint64()
		if id == 0 {
			continue
		}
		m.mu.RLock()
		_, exists := m.handles[id]
		m.mu.RUnlock()
		if !exists {
			return id
		}
	}
}

// SubmitWithID registers t under a caller-supplied id, the broadcast
// correlator every peer shares for one cluster-wide job (spec §4.4
// register(handle, id?)). Collisions with an already-registered id are
// errors.
func (m *Manager) SubmitWithID(id uint64, t Task[any], perTaskWorkers int) error {
	m.mu.RLock()
	_, exists := m.handles[id]
	m.mu.RUnlock()
	if exists {
		return apierr.New(apierr.AlreadyExists, "task.SubmitWithID", fmt.Errorf("task id %d already registered", id))
	}
	_, err := m.submit(id, t, perTaskWorkers)
	return err
}

func (m *Manager) submit(id uint64, t Task[any], perTaskWorkers int) (uint64, error) {
	h := newHandle(id)

	m.mu.Lock()
	m.handles[id] = h
	m.mu.Unlock()

	select {
	case m.queue <- job{handle: h, run: func(ctx context.Context) { run(ctx, t, h, perTaskWorkers) }}:
		return id, nil
	default:
		m.mu.Lock()
		delete(m.handles, id)
		m.mu.Unlock()
		return 0, apierr.New(apierr.InvalidConfig, "task.Submit", fmt.Errorf("task queue full (capacity %d)", queueCapacity))
	}
}

// Get returns the current snapshot of task id.
func (m *Manager) Get(id uint64) (model.TaskHandle, error) {
	m.mu.RLock()
	h, ok := m.handles[id]
	m.mu.RUnlock()
	if !ok {
		return model.TaskHandle{}, apierr.New(apierr.NotFound, "task.Get", fmt.Errorf("task %d not found", id))
	}
	return h.Snapshot(), nil
}

// List returns every tracked task's current snapshot.
func (m *Manager) List() []model.TaskHandle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TaskHandle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h.Snapshot())
	}
	return out
}

// Clear drops every tracked task whose status is Complete (spec §4.4);
// Running and Failure entries are left so a caller can still inspect a
// failure's message.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, h := range m.handles {
		if h.Snapshot().Status == model.TaskComplete {
			delete(m.handles, id)
		}
	}
}

// Close stops accepting new submissions and waits for dispatchers to drain.
func (m *Manager) Close() {
	close(m.queue)
	m.wg.Wait()
}
