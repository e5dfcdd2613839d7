// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"sync"

	"github.com/go-taskwire/taskwire"
)

// ErrTaskNotFound is returned by TaskStore.Load when no record exists for
// the given task id.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore persists task snapshots and their message history. Save
// overwrites any existing record for the same task id.
type TaskStore interface {
	// Save stores the task and its history, replacing any previous record.
	Save(ctx context.Context, task *taskwire.Task, history []taskwire.Message) error

	// Load retrieves the task and its history, or ErrTaskNotFound.
	Load(ctx context.Context, taskID string) (*taskwire.Task, []taskwire.Message, error)
}

type storedTask struct {
	task    taskwire.Task
	history []taskwire.Message
}

// InMemoryTaskStore is a mutex-guarded map implementation of TaskStore,
// suitable for tests and single-process agents.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]storedTask
}

var _ TaskStore = (*InMemoryTaskStore)(nil)

// NewInMemoryTaskStore creates an empty InMemoryTaskStore.
func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{
		tasks: make(map[string]storedTask),
	}
}

// Save implements [TaskStore].
func (s *InMemoryTaskStore) Save(_ context.Context, task *taskwire.Task, history []taskwire.Message) error {
	if task == nil || task.ID == "" {
		return errors.New("task id cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = storedTask{
		task:    *task,
		history: append([]taskwire.Message(nil), history...),
	}
	return nil
}

// Load implements [TaskStore].
func (s *InMemoryTaskStore) Load(_ context.Context, taskID string) (*taskwire.Task, []taskwire.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.tasks[taskID]
	if !ok {
		return nil, nil, ErrTaskNotFound
	}
	task := stored.task
	return &task, append([]taskwire.Message(nil), stored.history...), nil
}
