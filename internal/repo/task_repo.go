// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Task and
// Subtask models.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/domain"
)

// CreateTask inserts a new task row owned by userID.
func CreateTask(ctx context.Context, db *gorm.DB, t *domain.Task) (*domain.Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// ListTasks returns all tasks for a user ordered by due date (nulls last),
// then creation time.
func ListTasks(ctx context.Context, db *gorm.DB, userID string) ([]domain.Task, error) {
	var out []domain.Task
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("due_at IS NULL, due_at ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

// GetTask fetches a single task by id and owner, or ErrNotFound.
func GetTask(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Task, error) {
	var t domain.Task
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ReplaceSubtasks swaps the task's subtask batch in one transaction: any
// previous batch is removed and names are inserted in order.
func ReplaceSubtasks(ctx context.Context, db *gorm.DB, taskID string, names []string) ([]domain.Subtask, error) {
	now := time.Now().UTC()
	out := make([]domain.Subtask, 0, len(names))
	for i, name := range names {
		out = append(out, domain.Subtask{
			ID:        uuid.NewString(),
			TaskID:    taskID,
			Name:      name,
			Position:  i,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", taskID).Delete(&domain.Subtask{}).Error; err != nil {
			return err
		}
		if len(out) == 0 {
			return nil
		}
		return tx.Create(&out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListSubtasks returns the task's subtasks in batch order.
func ListSubtasks(ctx context.Context, db *gorm.DB, taskID string) ([]domain.Subtask, error) {
	var out []domain.Subtask
	err := db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

// ListTasksDueBetween returns tasks for userID whose due date falls in
// [from, to), ordered by due date ascending.
func ListTasksDueBetween(ctx context.Context, db *gorm.DB, userID string, from, to time.Time) ([]domain.Task, error) {
	var out []domain.Task
	err := db.WithContext(ctx).
		Where("user_id = ? AND due_at >= ? AND due_at < ?", userID, from, to).
		Order("due_at ASC").
		Find(&out).Error
	return out, err
}
