package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	robfigcron "github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/steward-bot/steward/internal/engine"
	"github.com/steward-bot/steward/internal/session"
)

// ErrInvalidTrigger means a malformed cron expression or a one-time timestamp
// that is not in the future. Rejected synchronously, never persisted.
var ErrInvalidTrigger = errors.New("invalid trigger")

// ErrNotFound is returned by Get/UpdateSchedule/SetEnabled for unknown ids.
var ErrNotFound = errors.New("task not found")

// Five-field cron with an optional leading seconds field, plus @-descriptors.
var cronParser = robfigcron.NewParser(
	robfigcron.SecondOptional | robfigcron.Minute | robfigcron.Hour |
		robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// Gate decides whether a firing may proceed and receives usage reports.
type Gate interface {
	CanProceed(ctx context.Context, tenantID string) bool
	TrackUsage(ctx context.Context, tenantID, kind string, cost int, success bool)
}

// Sessions resolves a channel's active session for the duration of one firing.
type Sessions interface {
	GetOrCreate(ctx context.Context, channelID string) (*session.Session, error)
	Touch(ctx context.Context, sessionID string) error
}

// Invoker executes an instruction against an engine conversation.
type Invoker interface {
	Invoke(ctx context.Context, handle, instruction string) (*engine.Reply, error)
}

// Notifier delivers a firing's reply back to its channel.
type Notifier interface {
	Deliver(transport, channelID, content string)
}

// ScheduleRequest carries everything needed to create a task.
type ScheduleRequest struct {
	Name        string
	Trigger     Trigger
	Instruction string
	ChannelID   string
	TenantID    string
	Transport   string
}

type taskEntry struct {
	task    Task
	entryID robfigcron.EntryID // armed cron handle, 0 when disarmed or one-time
	timer   *time.Timer        // armed one-time handle, nil otherwise

	// runMu serializes firings of this task: a trigger arriving while a
	// previous firing is still executing waits for it. Different tasks are
	// independent.
	runMu sync.Mutex
}

// Engine stores and fires scheduled tasks. The live-handle registry (cron
// entries and one-time timers) is an in-memory index over the persisted task
// documents, rebuilt at startup by LoadAll — persisted records, not the
// handles, are the authoritative state.
type Engine struct {
	store    *Store
	gate     Gate
	sessions Sessions
	invoker  Invoker
	notifier Notifier
	cron     *robfigcron.Cron
	now      func() time.Time

	mu      sync.Mutex
	tasks   map[string]*taskEntry
	order   []string // task ids in creation order
	stopped bool
}

// Config holds the engine's collaborators.
type Config struct {
	Store    *Store
	Gate     Gate
	Sessions Sessions
	Invoker  Invoker
	Notifier Notifier
	Now      func() time.Time // defaults to time.Now
}

func New(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:    cfg.Store,
		gate:     cfg.Gate,
		sessions: cfg.Sessions,
		invoker:  cfg.Invoker,
		notifier: cfg.Notifier,
		cron:     robfigcron.New(robfigcron.WithParser(cronParser)),
		now:      now,
		tasks:    make(map[string]*taskEntry),
	}
}

// Start begins dispatching armed cron triggers.
func (e *Engine) Start() {
	e.cron.Start()
}

// Validate is a pure syntactic check of a trigger, for tool-facing
// validators that want to reject input before calling Schedule.
func (e *Engine) Validate(t Trigger) bool {
	return e.checkTrigger(t) == nil
}

func (e *Engine) checkTrigger(t Trigger) error {
	if t.At != nil {
		if t.Cron != "" {
			return fmt.Errorf("%w: both cron expression and timestamp set", ErrInvalidTrigger)
		}
		if !t.At.After(e.now()) {
			return fmt.Errorf("%w: one-time trigger %s is not in the future", ErrInvalidTrigger, t.At.Format(time.RFC3339))
		}
		return nil
	}
	if strings.TrimSpace(t.Cron) == "" {
		return fmt.Errorf("%w: empty trigger", ErrInvalidTrigger)
	}
	if _, err := cronParser.Parse(t.Cron); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	return nil
}

// Schedule validates the trigger, persists the task, arms a live handle and
// returns the new task id.
func (e *Engine) Schedule(req ScheduleRequest) (string, error) {
	if err := e.checkTrigger(req.Trigger); err != nil {
		return "", err
	}

	task := Task{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Trigger:     req.Trigger,
		Instruction: req.Instruction,
		ChannelID:   req.ChannelID,
		TenantID:    req.TenantID,
		Transport:   req.Transport,
		OneTime:     req.Trigger.IsOneTime(),
		Enabled:     true,
		CreatedAt:   e.now().UTC(),
	}
	if task.Name == "" {
		task.Name = "task-" + task.ID[:8]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Storage before the live handle, so a crash in between leaves a record
	// that LoadAll re-arms rather than a timer with no record.
	if err := e.store.Upsert(task); err != nil {
		return "", fmt.Errorf("failed to persist task: %w", err)
	}

	entry := &taskEntry{task: task}
	e.tasks[task.ID] = entry
	e.order = append(e.order, task.ID)
	if err := e.arm(entry); err != nil {
		return "", err
	}

	log.Info().Str("task", task.ID).Str("name", task.Name).
		Str("trigger", task.Trigger.String()).Str("channel", task.ChannelID).
		Msg("task scheduled")
	return task.ID, nil
}

// List returns all tasks in creation order.
func (e *Engine) List() []Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Task, 0, len(e.order))
	for _, id := range e.order {
		if entry, ok := e.tasks[id]; ok {
			out = append(out, entry.task)
		}
	}
	return out
}

// Get returns a task by id.
func (e *Engine) Get(taskID string) (Task, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.tasks[taskID]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	return entry.task, nil
}

// Remove disarms the live handle and deletes the persisted record.
// Removing an absent id is a no-op.
func (e *Engine) Remove(taskID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.tasks[taskID]
	if !ok {
		return nil
	}
	if err := e.store.Delete(entry.task.ChannelID, taskID); err != nil {
		return fmt.Errorf("failed to delete task record: %w", err)
	}
	e.disarm(entry)
	delete(e.tasks, taskID)
	for i, id := range e.order {
		if id == taskID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return nil
}

// UpdateSchedule replaces a task's trigger, preserving its identity and
// history. The old handle is disarmed only after the new trigger is
// validated and persisted.
func (e *Engine) UpdateSchedule(taskID string, newTrigger Trigger) error {
	if err := e.checkTrigger(newTrigger); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}

	updated := entry.task
	updated.Trigger = newTrigger
	updated.OneTime = newTrigger.IsOneTime()
	if err := e.store.Upsert(updated); err != nil {
		return fmt.Errorf("failed to persist trigger update: %w", err)
	}

	e.disarm(entry)
	entry.task = updated
	return e.arm(entry)
}

// SetEnabled disarms (disabled) or re-arms (enabled) a task while keeping its
// persisted record.
func (e *Engine) SetEnabled(taskID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, taskID)
	}
	if entry.task.Enabled == enabled {
		return nil
	}

	updated := entry.task
	updated.Enabled = enabled
	if err := e.store.Upsert(updated); err != nil {
		return fmt.Errorf("failed to persist enabled flag: %w", err)
	}
	entry.task = updated

	if enabled {
		return e.arm(entry)
	}
	e.disarm(entry)
	return nil
}

// StopAll disarms every live handle without deleting persisted records, so a
// restart reconstructs the schedule faithfully. In-flight firings run to
// completion.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	for _, entry := range e.tasks {
		e.disarm(entry)
	}
	e.cron.Stop()
}

// LoadAll rebuilds the in-memory registry from persisted task documents and
// arms enabled tasks. Returns the number of tasks restored.
func (e *Engine) LoadAll() (int, error) {
	tasks, err := e.store.LoadAll()
	if err != nil {
		return 0, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		}
		return tasks[i].ID < tasks[j].ID
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	count := 0
	for _, task := range tasks {
		if task.Trigger.At == nil {
			if _, err := cronParser.Parse(task.Trigger.Cron); err != nil {
				log.Warn().Str("task", task.ID).Str("cron", task.Trigger.Cron).Err(err).
					Msg("skipping task with invalid persisted trigger")
				continue
			}
		}
		if _, exists := e.tasks[task.ID]; exists {
			continue
		}
		entry := &taskEntry{task: task}
		e.tasks[task.ID] = entry
		e.order = append(e.order, task.ID)
		if err := e.arm(entry); err != nil {
			log.Warn().Str("task", task.ID).Err(err).Msg("failed to arm restored task")
		}
		count++
	}
	return count, nil
}

// arm registers a live handle for the task. A one-time trigger whose time
// already passed (e.g. missed while the process was down) fires promptly.
// Caller holds e.mu.
func (e *Engine) arm(entry *taskEntry) error {
	if e.stopped || !entry.task.Enabled {
		return nil
	}
	taskID := entry.task.ID
	if entry.task.Trigger.At != nil {
		delay := entry.task.Trigger.At.Sub(e.now())
		if delay < 0 {
			delay = 0
		}
		entry.timer = time.AfterFunc(delay, func() { e.fire(taskID) })
		return nil
	}
	entryID, err := e.cron.AddFunc(entry.task.Trigger.Cron, func() { e.fire(taskID) })
	if err != nil {
		return fmt.Errorf("failed to arm cron trigger: %w", err)
	}
	entry.entryID = entryID
	return nil
}

// disarm stops the live handle without touching the persisted record.
// Caller holds e.mu.
func (e *Engine) disarm(entry *taskEntry) {
	if entry.entryID != 0 {
		e.cron.Remove(entry.entryID)
		entry.entryID = 0
	}
	if entry.timer != nil {
		entry.timer.Stop()
		entry.timer = nil
	}
}

// fire executes one trigger occurrence: quota gate, session lookup, engine
// invocation, usage report, lastRun update, one-time removal. Failures are
// contained here and never reach the dispatch loop.
func (e *Engine) fire(taskID string) {
	e.mu.Lock()
	entry, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return
	}

	entry.runMu.Lock()
	defer entry.runMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("task", taskID).Interface("panic", r).Msg("task execution panicked")
		}
	}()

	e.mu.Lock()
	task := entry.task
	e.mu.Unlock()
	if !task.Enabled {
		return
	}

	ctx := context.Background()

	if !e.gate.CanProceed(ctx, task.TenantID) {
		// Skipped, lastRun untouched: the next occurrence retries naturally.
		log.Info().Str("task", taskID).Str("tenant", task.TenantID).
			Msg("firing skipped: quota blocked")
		if task.OneTime {
			// A one-time task has no next occurrence to retry on.
			e.finishOneTime(taskID)
		}
		return
	}

	sess, err := e.sessions.GetOrCreate(ctx, task.ChannelID)
	if err != nil {
		log.Error().Err(err).Str("task", taskID).Str("channel", task.ChannelID).
			Msg("task execution failed: session unavailable")
		if task.OneTime {
			e.finishOneTime(taskID)
		}
		return
	}

	reply, invokeErr := e.invoker.Invoke(ctx, sess.EngineHandle, task.Instruction)

	// Usage is reported whether or not the invocation succeeded.
	cost := 0
	if reply != nil {
		cost = reply.CostUnits
	}
	e.gate.TrackUsage(ctx, task.TenantID, "scheduled", cost, invokeErr == nil)

	if invokeErr != nil {
		log.Error().Err(invokeErr).Str("task", taskID).Msg("task execution failed")
	} else {
		if err := e.sessions.Touch(ctx, sess.ID); err != nil {
			log.Warn().Err(err).Str("session", sess.ID).Msg("failed to touch session")
		}
		if e.notifier != nil && reply.Content != "" {
			e.notifier.Deliver(task.Transport, task.ChannelID, reply.Content)
		}
	}

	now := e.now().UTC()
	e.mu.Lock()
	if cur, ok := e.tasks[taskID]; ok {
		cur.task.LastRun = &now
		if err := e.store.Upsert(cur.task); err != nil {
			log.Error().Err(err).Str("task", taskID).Msg("failed to persist lastRun")
		}
	}
	e.mu.Unlock()

	if task.OneTime {
		e.finishOneTime(taskID)
	}
}

// finishOneTime removes a one-time task after its single firing, whether it
// succeeded or failed — one-time tasks never retry automatically.
func (e *Engine) finishOneTime(taskID string) {
	if err := e.Remove(taskID); err != nil {
		log.Error().Err(err).Str("task", taskID).Msg("failed to remove one-time task")
	}
}
