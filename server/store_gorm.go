// Copyright 2025 The Go Taskwire Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"gorm.io/gorm"

	"github.com/go-taskwire/taskwire"
)

// TaskStatusJSON stores a TaskStatus as a JSON column.
type TaskStatusJSON taskwire.TaskStatus

// Value implements [driver.Valuer].
func (s TaskStatusJSON) Value() (driver.Value, error) {
	data, err := json.Marshal(taskwire.TaskStatus(s))
	if err != nil {
		return nil, fmt.Errorf("marshal task status: %w", err)
	}
	return string(data), nil
}

// Scan implements [sql.Scanner].
func (s *TaskStatusJSON) Scan(value any) error {
	return scanJSON(value, (*taskwire.TaskStatus)(s))
}

// ArtifactSliceJSON stores []Artifact as a JSON column.
type ArtifactSliceJSON []taskwire.Artifact

// Value implements [driver.Valuer].
func (a ArtifactSliceJSON) Value() (driver.Value, error) {
	data, err := json.Marshal([]taskwire.Artifact(a))
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	return string(data), nil
}

// Scan implements [sql.Scanner].
func (a *ArtifactSliceJSON) Scan(value any) error {
	return scanJSON(value, (*[]taskwire.Artifact)(a))
}

// MessageSliceJSON stores []Message as a JSON column.
type MessageSliceJSON []taskwire.Message

// Value implements [driver.Valuer].
func (m MessageSliceJSON) Value() (driver.Value, error) {
	data, err := json.Marshal([]taskwire.Message(m))
	if err != nil {
		return nil, fmt.Errorf("marshal messages: %w", err)
	}
	return string(data), nil
}

// Scan implements [sql.Scanner].
func (m *MessageSliceJSON) Scan(value any) error {
	return scanJSON(value, (*[]taskwire.Message)(m))
}

// MetadataJSON stores a metadata map as a JSON column.
type MetadataJSON map[string]any

// Value implements [driver.Valuer].
func (m MetadataJSON) Value() (driver.Value, error) {
	data, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

// Scan implements [sql.Scanner].
func (m *MetadataJSON) Scan(value any) error {
	return scanJSON(value, (*map[string]any)(m))
}

func scanJSON(value any, out any) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported column type %T", value)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// TaskRecord is the database model for a persisted task and its history.
type TaskRecord struct {
	ID        string            `gorm:"primaryKey"`
	SessionID string            `gorm:"index"`
	Status    TaskStatusJSON    `gorm:"type:json"`
	Artifacts ArtifactSliceJSON `gorm:"type:json"`
	History   MessageSliceJSON  `gorm:"type:json"`
	Metadata  MetadataJSON      `gorm:"type:json"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName implements the gorm table name convention.
func (TaskRecord) TableName() string { return "tasks" }

// DatabaseTaskStore is a gorm-backed implementation of TaskStore.
type DatabaseTaskStore struct {
	db *gorm.DB
}

var _ TaskStore = (*DatabaseTaskStore)(nil)

// NewDatabaseTaskStore creates a DatabaseTaskStore and migrates its schema.
func NewDatabaseTaskStore(db *gorm.DB) (*DatabaseTaskStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if err := db.AutoMigrate(&TaskRecord{}); err != nil {
		return nil, fmt.Errorf("migrate task schema: %w", err)
	}
	return &DatabaseTaskStore{db: db}, nil
}

// Save implements [TaskStore].
func (s *DatabaseTaskStore) Save(ctx context.Context, task *taskwire.Task, history []taskwire.Message) error {
	if task == nil || task.ID == "" {
		return errors.New("task id cannot be empty")
	}

	record := TaskRecord{
		ID:        task.ID,
		SessionID: task.SessionID,
		Status:    TaskStatusJSON(task.Status),
		Artifacts: ArtifactSliceJSON(task.Artifacts),
		History:   MessageSliceJSON(history),
		Metadata:  MetadataJSON(task.Metadata),
	}

	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("save task %s: %w", task.ID, err)
	}
	return nil
}

// Load implements [TaskStore].
func (s *DatabaseTaskStore) Load(ctx context.Context, taskID string) (*taskwire.Task, []taskwire.Message, error) {
	var record TaskRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", taskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrTaskNotFound
		}
		return nil, nil, fmt.Errorf("load task %s: %w", taskID, err)
	}

	task := &taskwire.Task{
		ID:        record.ID,
		SessionID: record.SessionID,
		Status:    taskwire.TaskStatus(record.Status),
		Artifacts: []taskwire.Artifact(record.Artifacts),
		Metadata:  map[string]any(record.Metadata),
	}
	return task, []taskwire.Message(record.History), nil
}
