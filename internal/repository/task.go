package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hiroki-koketsu/focusflow/internal/model"
	"github.com/hiroki-koketsu/focusflow/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/hiroki-koketsu/focusflow/internal/repository")

// DefaultKey is the store key holding the serialized task list.
const DefaultKey = "focusflow_tasks_v1"

// maxIDAttempts bounds how often Add asks the generator for a fresh id.
const maxIDAttempts = 8

// ErrNoUniqueID is returned by Add when the id generator keeps producing
// empty or already used ids.
var ErrNoUniqueID = errors.New("no unique task id")

// TaskRepository owns the ordered task list (newest first) and mirrors every
// change to a store.Store before it becomes visible.
type TaskRepository struct {
	mu       sync.RWMutex
	tasks    []model.Task
	revision uint64

	store      store.Store
	key        string
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	onConflict func(ctx context.Context)
}

// Option configures a TaskRepository.
type Option func(*TaskRepository)

// WithKey overrides the store key.
func WithKey(key string) Option {
	return func(r *TaskRepository) { r.key = key }
}

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(r *TaskRepository) { r.now = now }
}

// WithIDGenerator overrides the task id source.
func WithIDGenerator(fn func() string) Option {
	return func(r *TaskRepository) { r.newID = fn }
}

// WithConflictHook registers fn to run when a write finds that another
// writer advanced the stored revision.
func WithConflictHook(fn func(ctx context.Context)) Option {
	return func(r *TaskRepository) { r.onConflict = fn }
}

// Snapshot is a copy of the list together with the revision it was read at.
type Snapshot struct {
	Tasks    []model.Task
	Revision uint64
}

// NewTaskRepository creates an empty repository. Call Load to read saved state.
func NewTaskRepository(st store.Store, logger *slog.Logger, opts ...Option) *TaskRepository {
	r := &TaskRepository{
		tasks:  []model.Task{},
		store:  st,
		key:    DefaultKey,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load replaces the in-memory list with the saved one. A missing or
// unreadable blob yields an empty list; only a failing store returns an error.
func (r *TaskRepository) Load(ctx context.Context) ([]model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Load",
		trace.WithAttributes(attribute.String("store.key", r.key)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = []model.Task{}
	r.revision = 0

	blob, ok, err := r.store.Get(ctx, r.key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	if !ok {
		span.SetAttributes(attribute.Bool("store.found", false))
		return []model.Task{}, nil
	}

	tasks, revision, err := decode(blob)
	if err != nil {
		r.logger.WarnContext(ctx, "discarding unreadable saved tasks", slog.Any("error", err))
		span.SetAttributes(attribute.Bool("store.corrupt", true))
		r.revision = storedRevision(blob)
		return []model.Task{}, nil
	}

	r.tasks = tasks
	r.revision = revision
	span.SetAttributes(attribute.Int("task.count", len(tasks)))
	return slices.Clone(tasks), nil
}

// Add validates in, creates a pending task and puts it at the front of the list.
func (r *TaskRepository) Add(ctx context.Context, in model.TaskInput) (model.Task, error) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Add",
		trace.WithAttributes(attribute.String("task.title", in.Title)),
	)
	defer span.End()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		span.SetAttributes(attribute.Bool("task.valid", false))
		return model.Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.uniqueID()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "id generation failed")
		return model.Task{}, err
	}

	task := model.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Priority:    in.Priority,
		Completed:   false,
		CreatedAt:   r.now().UnixMilli(),
	}

	next := make([]model.Task, 0, len(r.tasks)+1)
	next = append(next, task)
	next = append(next, r.tasks...)

	if err := r.commit(ctx, next); err != nil {
		span.RecordError(err)
		return model.Task{}, err
	}

	span.SetAttributes(attribute.String("task.id", task.ID))
	return task, nil
}

// Update replaces the editable fields of task id, keeping its position, id,
// completion state and creation time. found is false when id is unknown.
func (r *TaskRepository) Update(ctx context.Context, id string, in model.TaskInput) (task model.Task, found bool, err error) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Update",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	in = in.Normalize()
	if err := in.Validate(); err != nil {
		span.SetAttributes(attribute.Bool("task.valid", false))
		return model.Task{}, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.Task{}, false, nil
	}

	next := slices.Clone(r.tasks)
	next[i].Title = in.Title
	next[i].Description = in.Description
	next[i].DueDate = in.DueDate
	next[i].Priority = in.Priority

	if err := r.commit(ctx, next); err != nil {
		span.RecordError(err)
		return model.Task{}, true, err
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return next[i], true, nil
}

// Delete removes task id. Deleting an unknown id changes nothing.
func (r *TaskRepository) Delete(ctx context.Context, id string) (found bool, err error) {
	ctx, span := tracer.Start(ctx, "TaskRepository.Delete",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return false, nil
	}

	next := slices.Delete(slices.Clone(r.tasks), i, i+1)
	if err := r.commit(ctx, next); err != nil {
		span.RecordError(err)
		return true, err
	}

	span.SetAttributes(attribute.Bool("task.found", true))
	return true, nil
}

// ToggleCompletion flips the completed flag of task id.
func (r *TaskRepository) ToggleCompletion(ctx context.Context, id string) (task model.Task, found bool, err error) {
	ctx, span := tracer.Start(ctx, "TaskRepository.ToggleCompletion",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		span.SetAttributes(attribute.Bool("task.found", false))
		return model.Task{}, false, nil
	}

	next := slices.Clone(r.tasks)
	next[i].Completed = !next[i].Completed

	if err := r.commit(ctx, next); err != nil {
		span.RecordError(err)
		return model.Task{}, true, err
	}

	span.SetAttributes(
		attribute.Bool("task.found", true),
		attribute.Bool("task.completed", next[i].Completed),
	)
	return next[i], true, nil
}

// List returns a copy of the list in stored order.
func (r *TaskRepository) List(ctx context.Context) []model.Task {
	_, span := tracer.Start(ctx, "TaskRepository.List")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	span.SetAttributes(attribute.Int("task.count", len(r.tasks)))
	return slices.Clone(r.tasks)
}

// Get returns task id.
func (r *TaskRepository) Get(ctx context.Context, id string) (model.Task, bool) {
	_, span := tracer.Start(ctx, "TaskRepository.Get",
		trace.WithAttributes(attribute.String("task.id", id)),
	)
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	span.SetAttributes(attribute.Bool("task.found", i >= 0))
	if i < 0 {
		return model.Task{}, false
	}
	return r.tasks[i], true
}

// Snapshot returns the list and its revision read under one lock.
func (r *TaskRepository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{Tasks: slices.Clone(r.tasks), Revision: r.revision}
}

// Revision returns the revision of the last loaded or written list.
func (r *TaskRepository) Revision() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

// Count returns the current number of tasks.
func (r *TaskRepository) Count() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.tasks))
}

// commit writes next to the store and, once that succeeds, makes it the
// current list. Callers hold r.mu.
func (r *TaskRepository) commit(ctx context.Context, next []model.Task) error {
	revision := r.revision

	blob, ok, err := r.store.Get(ctx, r.key)
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "could not read stored revision", slog.Any("error", err))
	case ok:
		if stored := storedRevision(blob); stored > revision {
			r.logger.WarnContext(ctx, "saved tasks were changed by another writer; overwriting",
				slog.Uint64("stored_revision", stored),
				slog.Uint64("local_revision", revision),
			)
			if r.onConflict != nil {
				r.onConflict(ctx)
			}
			revision = stored
		}
	}
	revision++

	data, err := encode(next, revision)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, r.key, data); err != nil {
		return fmt.Errorf("persist tasks: %w", err)
	}

	r.tasks = next
	r.revision = revision
	return nil
}

func (r *TaskRepository) indexOf(id string) int {
	return slices.IndexFunc(r.tasks, func(t model.Task) bool { return t.ID == id })
}

func (r *TaskRepository) uniqueID() (string, error) {
	for range maxIDAttempts {
		id := r.newID()
		if id != "" && r.indexOf(id) < 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", ErrNoUniqueID, maxIDAttempts)
}
