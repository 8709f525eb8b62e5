// Task HTTP handlers.
//
//   - POST /tasks                (create)
//   - GET  /tasks                (list)
//   - GET  /tasks/{id}           (detail)
//   - POST /tasks/{id}/subtasks  (generate a work breakdown)
//   - GET  /tasks/{id}/subtasks  (list the stored breakdown)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/services"
)

// TaskService defines task operations consumed by handlers.
type TaskService interface {
	Create(ctx context.Context, userID string, in services.TaskInput) (*domain.Task, error)
	List(ctx context.Context, userID string) ([]domain.Task, error)
	Get(ctx context.Context, userID, taskID string) (*domain.Task, error)
	GenerateSubtasks(ctx context.Context, userID, taskID, courseName string) ([]domain.Subtask, error)
	ListSubtasks(ctx context.Context, userID, taskID string) ([]domain.Subtask, error)
}

// CreateTask creates a task for the caller.
func (h *Handlers) CreateTask(c *gin.Context) {
	var req services.TaskInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	t, err := h.taskSvc.Create(c.Request.Context(), userID(c), req)
	if err != nil {
		if errors.Is(err, services.ErrEmptyTaskName) || errors.Is(err, services.ErrInvalidTaskType) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, t)
}

// ListTasks lists the caller's tasks, soonest deadline first.
func (h *Handlers) ListTasks(c *gin.Context) {
	ts, err := h.taskSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"tasks": ts})
}

// GetTask returns one of the caller's tasks.
func (h *Handlers) GetTask(c *gin.Context) {
	t, err := h.taskSvc.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "task not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, t)
}

// GenerateSubtasks asks the model for a work breakdown of the task and
// replaces its stored subtasks. The body is optional context.
func (h *Handlers) GenerateSubtasks(c *gin.Context) {
	var req struct {
		CourseName string `json:"course_name"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}

	subs, err := h.taskSvc.GenerateSubtasks(c.Request.Context(), userID(c), c.Param("id"), req.CourseName)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTaskNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "task not found")
		case errors.Is(err, services.ErrSubtaskGeneration):
			fail(c, http.StatusBadGateway, ErrCodeGenerateFailed, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, gin.H{"subtasks": subs})
}

// ListSubtasks returns the task's stored work breakdown.
func (h *Handlers) ListSubtasks(c *gin.Context) {
	subs, err := h.taskSvc.ListSubtasks(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrTaskNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "task not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"subtasks": subs})
}
