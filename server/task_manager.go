// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-taskwire/taskwire"
)

// TaskManager is the interface the JSON-RPC dispatch layer calls into.
type TaskManager interface {
	// OnSendTask handles tasks/send.
	OnSendTask(ctx context.Context, params taskwire.TaskSendParams) (*taskwire.Task, error)

	// OnGetTask handles tasks/get.
	OnGetTask(ctx context.Context, params taskwire.TaskQueryParams) (*taskwire.Task, error)

	// OnCancelTask handles tasks/cancel.
	OnCancelTask(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.Task, error)

	// OnSetPushNotification handles tasks/pushNotification/set.
	OnSetPushNotification(ctx context.Context, config taskwire.TaskPushNotificationConfig) (*taskwire.TaskPushNotificationConfig, error)

	// OnGetPushNotification handles tasks/pushNotification/get.
	OnGetPushNotification(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.TaskPushNotificationConfig, error)

	// OnSendTaskSubscribe handles tasks/sendSubscribe. The returned channel
	// closes after the final event.
	OnSendTaskSubscribe(ctx context.Context, params taskwire.TaskSendParams) (<-chan taskwire.Event, error)

	// OnResubscribe handles tasks/resubscribe.
	OnResubscribe(ctx context.Context, params taskwire.TaskIDParams) (<-chan taskwire.Event, error)
}

// TaskHandler runs the agent's own logic for one incoming message. It
// receives the task snapshot with the new message already appended to
// history, and returns the updated task. Leaving the returned task in a
// non-terminal state marks it completed.
type TaskHandler func(ctx context.Context, task *taskwire.Task, message taskwire.Message) (*taskwire.Task, error)

const subscriberBuffer = 16

// InMemoryTaskManager is a TaskManager that runs a TaskHandler over a
// TaskStore and fans task updates out to per-task subscribers.
type InMemoryTaskManager struct {
	store   TaskStore
	handler TaskHandler

	pushMu      sync.RWMutex
	pushConfigs map[string]taskwire.TaskPushNotificationConfig

	subMu       sync.Mutex
	subscribers map[string][]chan taskwire.Event

	notifier *Notifier

	// Logger is the logger for the task manager.
	Logger *slog.Logger

	// Tracer is the tracer for the task manager.
	Tracer trace.Tracer
}

var _ TaskManager = (*InMemoryTaskManager)(nil)

// NewInMemoryTaskManager creates a task manager over store, running handler
// for each incoming message.
func NewInMemoryTaskManager(store TaskStore, handler TaskHandler) *InMemoryTaskManager {
	if store == nil {
		store = NewInMemoryTaskStore()
	}
	return &InMemoryTaskManager{
		store:       store,
		handler:     handler,
		pushConfigs: make(map[string]taskwire.TaskPushNotificationConfig),
		subscribers: make(map[string][]chan taskwire.Event),
		Logger:      slog.Default(),
		Tracer:      otel.GetTracerProvider().Tracer("github.com/go-taskwire/taskwire/server"),
	}
}

// WithLogger sets the logger for the task manager.
func (tm *InMemoryTaskManager) WithLogger(logger *slog.Logger) *InMemoryTaskManager {
	tm.Logger = logger
	return tm
}

// WithTracer sets the tracer for the task manager.
func (tm *InMemoryTaskManager) WithTracer(tracer trace.Tracer) *InMemoryTaskManager {
	tm.Tracer = tracer
	return tm
}

// WithNotifier sets the push notifier used for out-of-band updates.
func (tm *InMemoryTaskManager) WithNotifier(notifier *Notifier) *InMemoryTaskManager {
	tm.notifier = notifier
	return tm
}

// OnSendTask implements [TaskManager].
func (tm *InMemoryTaskManager) OnSendTask(ctx context.Context, params taskwire.TaskSendParams) (*taskwire.Task, error) {
	ctx, span := tm.Tracer.Start(ctx, "taskwire.server.OnSendTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, history, err := tm.upsertTask(ctx, params)
	if err != nil {
		return nil, err
	}

	task, err = tm.runHandler(ctx, task, params.Message)
	if err != nil {
		return nil, err
	}

	if err := tm.store.Save(ctx, task, history); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	tm.publishTaskUpdate(ctx, task)
	return tm.trimmedCopy(task, history, params.HistoryLength), nil
}

// OnGetTask implements [TaskManager].
func (tm *InMemoryTaskManager) OnGetTask(ctx context.Context, params taskwire.TaskQueryParams) (*taskwire.Task, error) {
	ctx, span := tm.Tracer.Start(ctx, "taskwire.server.OnGetTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, history, err := tm.store.Load(ctx, params.ID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, taskwire.NewTaskNotFoundError(params.ID)
		}
		return nil, fmt.Errorf("load task: %w", err)
	}
	return tm.trimmedCopy(task, history, params.HistoryLength), nil
}

// OnCancelTask implements [TaskManager].
func (tm *InMemoryTaskManager) OnCancelTask(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.Task, error) {
	ctx, span := tm.Tracer.Start(ctx, "taskwire.server.OnCancelTask",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, history, err := tm.store.Load(ctx, params.ID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, taskwire.NewTaskNotFoundError(params.ID)
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	if task.Status.State.Terminal() {
		return nil, taskwire.NewTaskNotCancelableError(params.ID)
	}

	task.Status = taskwire.TaskStatus{
		State:     taskwire.TaskStateCanceled,
		Timestamp: time.Now().UTC(),
	}
	if err := tm.store.Save(ctx, task, history); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	tm.publishTaskUpdate(ctx, task)
	return task, nil
}

// OnSetPushNotification implements [TaskManager].
func (tm *InMemoryTaskManager) OnSetPushNotification(ctx context.Context, config taskwire.TaskPushNotificationConfig) (*taskwire.TaskPushNotificationConfig, error) {
	_, span := tm.Tracer.Start(ctx, "taskwire.server.OnSetPushNotification",
		trace.WithAttributes(attribute.String("taskwire.task_id", config.ID)))
	defer span.End()

	if err := config.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}
	if _, _, err := tm.store.Load(ctx, config.ID); err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, taskwire.NewTaskNotFoundError(config.ID)
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	tm.pushMu.Lock()
	tm.pushConfigs[config.ID] = config
	tm.pushMu.Unlock()

	return &config, nil
}

// OnGetPushNotification implements [TaskManager].
func (tm *InMemoryTaskManager) OnGetPushNotification(ctx context.Context, params taskwire.TaskIDParams) (*taskwire.TaskPushNotificationConfig, error) {
	_, span := tm.Tracer.Start(ctx, "taskwire.server.OnGetPushNotification",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	tm.pushMu.RLock()
	config, ok := tm.pushConfigs[params.ID]
	tm.pushMu.RUnlock()
	if !ok {
		return nil, taskwire.NewTaskNotFoundError(params.ID)
	}
	return &config, nil
}

// OnSendTaskSubscribe implements [TaskManager]. The handler runs in the
// background; the returned channel delivers updates until the final event.
func (tm *InMemoryTaskManager) OnSendTaskSubscribe(ctx context.Context, params taskwire.TaskSendParams) (<-chan taskwire.Event, error) {
	ctx, span := tm.Tracer.Start(ctx, "taskwire.server.OnSendTaskSubscribe",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, history, err := tm.upsertTask(ctx, params)
	if err != nil {
		return nil, err
	}
	if err := tm.store.Save(ctx, task, history); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}

	events := tm.subscribe(ctx, params.ID)

	go func() {
		working := *task
		working.Status = taskwire.TaskStatus{State: taskwire.TaskStateWorking, Timestamp: time.Now().UTC()}
		if err := tm.store.Save(ctx, &working, history); err != nil {
			tm.Logger.ErrorContext(ctx, "save working state", slog.Any("error", err))
		}
		tm.publishTaskUpdate(ctx, &working)

		final, err := tm.runHandler(ctx, &working, params.Message)
		if err != nil {
			working.Status = taskwire.TaskStatus{State: taskwire.TaskStateFailed, Timestamp: time.Now().UTC()}
			if serr := tm.store.Save(ctx, &working, history); serr != nil {
				tm.Logger.ErrorContext(ctx, "save failed state", slog.Any("error", serr))
			}
			tm.publish(ctx, &taskFailure{
				TaskStatusUpdateEvent: statusEvent(&working),
				err:                   toRPCError(err),
			})
			return
		}
		if err := tm.store.Save(ctx, final, history); err != nil {
			tm.Logger.ErrorContext(ctx, "save final state", slog.Any("error", err))
		}

		for i := range final.Artifacts {
			tm.publish(ctx, &taskwire.TaskArtifactUpdateEvent{
				ID:       final.ID,
				Artifact: final.Artifacts[i],
			})
		}
		tm.publishTaskUpdate(ctx, final)
	}()

	return events, nil
}

// OnResubscribe implements [TaskManager]. For a task already in a terminal
// state it replays a single final status event and closes.
func (tm *InMemoryTaskManager) OnResubscribe(ctx context.Context, params taskwire.TaskIDParams) (<-chan taskwire.Event, error) {
	ctx, span := tm.Tracer.Start(ctx, "taskwire.server.OnResubscribe",
		trace.WithAttributes(attribute.String("taskwire.task_id", params.ID)))
	defer span.End()

	if err := params.Validate(); err != nil {
		return nil, taskwire.NewInvalidParamsError(err.Error())
	}

	task, _, err := tm.store.Load(ctx, params.ID)
	if err != nil {
		if errors.Is(err, ErrTaskNotFound) {
			return nil, taskwire.NewTaskNotFoundError(params.ID)
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	if task.Status.State.Terminal() {
		events := make(chan taskwire.Event, 1)
		events <- statusEvent(task)
		close(events)
		return events, nil
	}

	return tm.subscribe(ctx, params.ID), nil
}

// upsertTask loads the task for params.ID, creating it on first contact,
// and appends the incoming message to its history.
func (tm *InMemoryTaskManager) upsertTask(ctx context.Context, params taskwire.TaskSendParams) (*taskwire.Task, []taskwire.Message, error) {
	task, history, err := tm.store.Load(ctx, params.ID)
	switch {
	case errors.Is(err, ErrTaskNotFound):
		task = &taskwire.Task{
			ID:        params.ID,
			SessionID: params.SessionID,
			Status:    taskwire.TaskStatus{State: taskwire.TaskStateSubmitted, Timestamp: time.Now().UTC()},
			Metadata:  params.Metadata,
		}
	case err != nil:
		return nil, nil, fmt.Errorf("load task: %w", err)
	}

	history = append(history, params.Message)
	task.History = history
	return task, history, nil
}

// runHandler invokes the agent handler and normalizes the resulting state.
func (tm *InMemoryTaskManager) runHandler(ctx context.Context, task *taskwire.Task, message taskwire.Message) (*taskwire.Task, error) {
	if tm.handler == nil {
		return task, nil
	}

	result, err := tm.handler(ctx, task, message)
	if err != nil {
		var rpcErr *taskwire.JSONRPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		return nil, taskwire.NewInternalError(err.Error())
	}
	if result == nil {
		result = task
	}
	if !result.Status.State.Terminal() && result.Status.State != taskwire.TaskStateInputRequired {
		result.Status = taskwire.TaskStatus{State: taskwire.TaskStateCompleted, Timestamp: time.Now().UTC()}
	}
	return result, nil
}

// trimmedCopy returns a copy of task carrying at most the last
// historyLength history messages. Zero means no history is echoed back.
func (tm *InMemoryTaskManager) trimmedCopy(task *taskwire.Task, history []taskwire.Message, historyLength int) *taskwire.Task {
	out := *task
	switch {
	case historyLength <= 0:
		out.History = nil
	case historyLength >= len(history):
		out.History = history
	default:
		out.History = history[len(history)-historyLength:]
	}
	return &out
}

// subscribe registers a new event channel for the task. The registration is
// cleared by the final event or, when the caller disconnects first, by ctx.
func (tm *InMemoryTaskManager) subscribe(ctx context.Context, taskID string) chan taskwire.Event {
	ch := make(chan taskwire.Event, subscriberBuffer)
	tm.subMu.Lock()
	tm.subscribers[taskID] = append(tm.subscribers[taskID], ch)
	tm.subMu.Unlock()

	go func() {
		<-ctx.Done()
		tm.unsubscribe(taskID, ch)
	}()
	return ch
}

// unsubscribe removes ch from the task's subscriber list. It is a no-op when
// the final event already cleared the registration.
func (tm *InMemoryTaskManager) unsubscribe(taskID string, ch chan taskwire.Event) {
	tm.subMu.Lock()
	defer tm.subMu.Unlock()

	subs := tm.subscribers[taskID]
	for i, sub := range subs {
		if sub == ch {
			tm.subscribers[taskID] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(tm.subscribers[taskID]) == 0 {
		delete(tm.subscribers, taskID)
	}
}

// taskFailure is the final event published when a streaming handler fails.
// It carries the failed status for push delivery and the error the event
// stream terminates with.
type taskFailure struct {
	*taskwire.TaskStatusUpdateEvent
	err *taskwire.JSONRPCError
}

func statusEvent(task *taskwire.Task) *taskwire.TaskStatusUpdateEvent {
	return &taskwire.TaskStatusUpdateEvent{
		ID:      task.ID,
		Status:  task.Status,
		IsFinal: task.Status.State.Terminal(),
	}
}

func (tm *InMemoryTaskManager) publishTaskUpdate(ctx context.Context, task *taskwire.Task) {
	tm.publish(ctx, statusEvent(task))
}

// publish fans an event out to every subscriber of its task. Final events
// close the subscriber channels. Slow subscribers are dropped rather than
// blocking the task.
func (tm *InMemoryTaskManager) publish(ctx context.Context, event taskwire.Event) {
	taskID := event.GetTaskID()

	tm.subMu.Lock()
	subs := tm.subscribers[taskID]
	if event.Final() {
		delete(tm.subscribers, taskID)
	}
	tm.subMu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
			tm.Logger.WarnContext(ctx, "dropping event for slow subscriber", slog.String("task_id", taskID))
		}
		if event.Final() {
			close(ch)
		}
	}

	if event.Final() {
		tm.notifySubscribers(ctx, taskID, event)
	}
}

// notifySubscribers delivers the final event out-of-band when a push
// notification config is registered for the task.
func (tm *InMemoryTaskManager) notifySubscribers(ctx context.Context, taskID string, event taskwire.Event) {
	if tm.notifier == nil {
		return
	}

	tm.pushMu.RLock()
	config, ok := tm.pushConfigs[taskID]
	tm.pushMu.RUnlock()
	if !ok {
		return
	}

	if err := tm.notifier.Notify(ctx, config.PushNotificationConfig, event); err != nil {
		tm.Logger.WarnContext(ctx, "push notification failed",
			slog.String("task_id", taskID), slog.Any("error", err))
	}
}
