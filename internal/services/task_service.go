package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/llm"
	"github.com/hai-app/go-study-backend/internal/repo"
)

// TaskInput carries the user-editable fields of a task.
type TaskInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	StartAt     *time.Time `json:"start_at"`
	EndAt       *time.Time `json:"end_at"`
	DueAt       *time.Time `json:"due_at"`
	Link        string     `json:"link"`
}

// SubtaskModel is the slice of the model client that subtask generation
// consumes.
type SubtaskModel interface {
	CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
}

// TaskService owns task CRUD and model-backed subtask generation. Ownership
// is enforced at the repository layer by scoping every query to the acting
// user.
type TaskService struct {
	DB    *gorm.DB
	Model SubtaskModel
}

// NewTaskService constructs a TaskService.
func NewTaskService(db *gorm.DB) *TaskService {
	return &TaskService{DB: db}
}

// Create validates the input and inserts a task for the user.
func (s *TaskService) Create(ctx context.Context, userID string, in TaskInput) (*domain.Task, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrEmptyTaskName
	}

	taskType := domain.TaskOther
	if in.Type != "" {
		taskType = domain.TaskType(in.Type)
		if !taskType.Valid() {
			return nil, ErrInvalidTaskType
		}
	}

	return repo.CreateTask(ctx, s.DB, &domain.Task{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Type:        taskType,
		StartAt:     in.StartAt,
		EndAt:       in.EndAt,
		DueAt:       in.DueAt,
		Link:        strings.TrimSpace(in.Link),
	})
}

// List returns the user's tasks ordered soonest deadline first, undated last.
func (s *TaskService) List(ctx context.Context, userID string) ([]domain.Task, error) {
	return repo.ListTasks(ctx, s.DB, userID)
}

// Get fetches one task, verifying ownership.
func (s *TaskService) Get(ctx context.Context, userID, taskID string) (*domain.Task, error) {
	t, err := repo.GetTask(ctx, s.DB, taskID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return t, nil
}

// DueBetween returns the user's tasks with a deadline inside [from, to).
func (s *TaskService) DueBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Task, error) {
	return repo.ListTasksDueBetween(ctx, s.DB, userID, from, to)
}

const subtaskPrompt = `You break a piece of university coursework into concrete steps a student can act on.

Reply with a JSON array of 3 to 7 short step names, ordered, nothing else. Example: ["Read chapter 4","Outline the essay","Write the first draft"]`

// GenerateSubtasks asks the model for a work breakdown of the task and
// replaces the task's stored subtask batch with the result. courseName is
// optional context for the prompt.
func (s *TaskService) GenerateSubtasks(ctx context.Context, userID, taskID, courseName string) ([]domain.Subtask, error) {
	tr := otel.Tracer("services/TaskService")
	ctx, span := tr.Start(ctx, "GenerateSubtasks",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	if s.Model == nil {
		return nil, fmt.Errorf("%w: no model configured", ErrSubtaskGeneration)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task: %s", task.Name)
	if courseName = strings.TrimSpace(courseName); courseName != "" {
		fmt.Fprintf(&b, "\nCourse: %s", courseName)
	}
	if task.Description != "" {
		fmt.Fprintf(&b, "\nDetails: %s", task.Description)
	}
	if task.DueAt != nil {
		fmt.Fprintf(&b, "\nDue: %s", task.DueAt.Format(time.RFC3339))
	}

	resp, err := s.Model.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: subtaskPrompt},
			{Role: llm.RoleUser, Content: b.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubtaskGeneration, err)
	}
	choice := resp.FirstChoice()
	if choice == nil {
		return nil, fmt.Errorf("%w: empty completion", ErrSubtaskGeneration)
	}

	names, err := parseSubtaskNames(choice.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubtaskGeneration, err)
	}
	return repo.ReplaceSubtasks(ctx, s.DB, task.ID, names)
}

// ListSubtasks returns the task's stored subtasks in order, verifying
// ownership of the parent task.
func (s *TaskService) ListSubtasks(ctx context.Context, userID, taskID string) ([]domain.Subtask, error) {
	task, err := s.Get(ctx, userID, taskID)
	if err != nil {
		return nil, err
	}
	return repo.ListSubtasks(ctx, s.DB, task.ID)
}

// parseSubtaskNames extracts the JSON string array from model output,
// tolerating surrounding prose or a markdown fence.
func parseSubtaskNames(content string) ([]string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, errors.New("no JSON array in completion")
	}
	var names []string
	if err := json.Unmarshal([]byte(content[start:end+1]), &names); err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("completion held no step names")
	}
	return out, nil
}
