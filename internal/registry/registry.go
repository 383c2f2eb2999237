// Package registry tracks the consumer pumps of a worker epoch.
//
// Every subscription gets its own goroutine and its own cancel func. Tasks
// belong to a generation; CancelAll ends the current generation and starts
// a new one. Cancellation never waits for pumps to exit, so a message a
// pump already dequeued may still be handled after CancelAll returns.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/moroshma/jstail/internal/domain/entity"
	"github.com/moroshma/jstail/internal/domain/repository"
	"github.com/moroshma/jstail/pkg/logger"
)

// Handler processes one message. ctx is the task's own context.
type Handler func(ctx context.Context, msg *entity.Message)

// Task is one registered pump.
type Task struct {
	ID     uint64
	Name   string
	Stream string

	generation string
	sub        repository.Subscription
	cancel     context.CancelFunc
}

// Generation returns the id of the generation the task belongs to.
func (t *Task) Generation() string {
	return t.generation
}

// Registry implements the consumer registry
type Registry struct {
	parent context.Context
	logger *logger.Logger

	mu         sync.Mutex
	genCtx     context.Context
	genCancel  context.CancelFunc
	generation string
	tasks      map[uint64]*Task
	nextID     uint64
	closed     bool
	onChange   func(active int)

	wg sync.WaitGroup
}

// New creates a registry whose generations derive from parent.
func New(parent context.Context, log *logger.Logger) *Registry {
	r := &Registry{
		parent: parent,
		logger: log.Named("registry"),
		tasks:  make(map[uint64]*Task),
	}
	r.newGeneration()
	return r
}

// OnChange registers a callback that receives the task count after each change.
func (r *Registry) OnChange(fn func(active int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Registry) newGeneration() {
	r.genCtx, r.genCancel = context.WithCancel(r.parent)
	r.generation = uuid.NewString()
}

// Generation returns the current generation id.
func (r *Registry) Generation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.generation
}

// Context returns the context of the current generation. It is cancelled
// by the next CancelAll.
func (r *Registry) Context() context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.genCtx
}

// Spawn registers sub and starts its pump. If the registry is already
// closed the subscription is stopped and nil is returned.
func (r *Registry) Spawn(name, stream string, sub repository.Subscription, handle Handler) *Task {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = sub.Stop()
		return nil
	}

	r.nextID++
	ctx, cancel := context.WithCancel(r.genCtx)
	task := &Task{
		ID:         r.nextID,
		Name:       name,
		Stream:     stream,
		generation: r.generation,
		sub:        sub,
		cancel:     cancel,
	}
	r.tasks[task.ID] = task
	active := len(r.tasks)
	onChange := r.onChange
	r.wg.Add(1)
	r.mu.Unlock()

	if onChange != nil {
		onChange(active)
	}

	go r.pump(ctx, task, handle)
	return task
}

func (r *Registry) pump(ctx context.Context, task *Task, handle Handler) {
	defer r.wg.Done()

	msgs := task.sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			handle(ctx, msg)
		}
	}
}

// Go runs fn on the current generation context. The stream-existence poll
// uses it so an abandoned poll ends with its generation.
func (r *Registry) Go(name string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	ctx := r.genCtx
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		fn(ctx)
	}()
}

// Cancel stops one task.
func (r *Registry) Cancel(id uint64) bool {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if ok {
		delete(r.tasks, id)
	}
	active := len(r.tasks)
	onChange := r.onChange
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.stop(task)
	if onChange != nil {
		onChange(active)
	}
	return true
}

// CancelAll stops every task of the current generation and opens a new
// generation. It returns how many tasks were stopped.
func (r *Registry) CancelAll() int {
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = make(map[uint64]*Task)
	r.genCancel()
	if !r.closed {
		r.newGeneration()
	}
	onChange := r.onChange
	r.mu.Unlock()

	for _, task := range tasks {
		r.stop(task)
	}
	if len(tasks) > 0 {
		r.logger.Debug("Cancelled consumer generation", logger.Int("tasks", len(tasks)))
	}
	if onChange != nil {
		onChange(0)
	}
	return len(tasks)
}

func (r *Registry) stop(task *Task) {
	task.cancel()
	if err := task.sub.Stop(); err != nil {
		r.logger.Warn("Failed to stop subscription",
			logger.String("task", task.Name),
			logger.String("stream", task.Stream),
			logger.Error(err),
		)
	}
}

// Len returns the number of live tasks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}

// Streams returns the stream of every live task, sorted. A stream appears
// once per task bound to it.
func (r *Registry) Streams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, t.Stream)
	}
	sort.Strings(out)
	return out
}

// Close cancels everything and refuses new tasks.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.CancelAll()
}

// Wait blocks until every pump and background function has returned.
func (r *Registry) Wait() {
	r.wg.Wait()
}
