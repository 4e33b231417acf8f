package uploads

import (
	"sync"
	"time"
)

// Registry holds the live upload tasks. Terminal tasks linger for a short
// fixed window so pollers observe the final state before the entry vanishes.
type Registry struct {
	mu     sync.RWMutex
	tasks  map[string]*Task
	order  []string
	linger time.Duration

	// afterFunc is swappable for deterministic removal in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

// NewRegistry constructs a task registry with the given terminal linger.
func NewRegistry(linger time.Duration) *Registry {
	return &Registry{
		tasks:     map[string]*Task{},
		linger:    linger,
		afterFunc: time.AfterFunc,
	}
}

func (r *Registry) register(task *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.id] = task
	r.order = append(r.order, task.id)
}

// Get returns a task by id.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	return task, ok
}

// Snapshots copies every live task in registration order.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.RLock()
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	tasks := make(map[string]*Task, len(r.tasks))
	for id, task := range r.tasks {
		tasks[id] = task
	}
	r.mu.RUnlock()

	snapshots := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if task, ok := tasks[id]; ok {
			snapshots = append(snapshots, task.Snapshot())
		}
	}
	return snapshots
}

// retire schedules a terminal task's removal after the linger window.
func (r *Registry) retire(id string) {
	r.afterFunc(r.linger, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.tasks, id)
		for i, candidate := range r.order {
			if candidate == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	})
}
