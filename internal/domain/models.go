// Package domain defines the persistence models for chatrooms, messages,
// tasks, courses, and third-party integrations. These types are mapped with
// GORM and form the core data layer of the study backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Provider identifies a third-party service the backend stores credentials for.
type Provider string

// Supported credential providers.
const (
	ProviderCanvas Provider = "canvas"
	ProviderGoogle Provider = "google"
)

// Valid reports whether p is one of the supported providers.
func (p Provider) Valid() bool {
	return p == ProviderCanvas || p == ProviderGoogle
}

// Integration stores one credential for one (user, provider) pair.
//
// At most one row is kept active per pair; writes go through an upsert so a
// reconnect replaces the previous token instead of accumulating rows. Rows are
// mutated in place when the provider issues a refreshed token and are never
// physically deleted in normal operation.
type Integration struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string         `json:"user_id"       gorm:"type:varchar(64);not null;uniqueIndex:ux_integration_user_provider,priority:1"`
	Provider     Provider       `json:"provider"      gorm:"type:varchar(16);not null;check:provider IN ('canvas','google');uniqueIndex:ux_integration_user_provider,priority:2"`
	AccessToken  string         `json:"-"             gorm:"type:text;not null"`
	RefreshToken string         `json:"-"             gorm:"type:text"`
	ExpiresAt    *time.Time     `json:"expires_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for Integration.
func (Integration) TableName() string { return "integrations" }

// Chatroom represents a conversation context owned by a user. Direct rooms
// hold the user's exchange with the scheduling agent; group rooms are shared
// per course.
type Chatroom struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null;default:'New chat'"`
	Type      string         `json:"type"       gorm:"type:varchar(16);not null;default:'direct';check:type IN ('direct','group')"`
	CourseID  *string        `json:"course_id,omitempty" gorm:"type:char(36)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Members []ChatroomMember `json:"members,omitempty" gorm:"foreignKey:ChatroomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Chatroom.
func (Chatroom) TableName() string { return "chatrooms" }

// ChatroomMember links a user to a chatroom. The room creator is admin and is
// the only member allowed to rename or delete the room.
type ChatroomMember struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ChatroomID string         `json:"chatroom_id" gorm:"type:char(36);not null;uniqueIndex:ux_member_room_user,priority:1"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index;uniqueIndex:ux_member_room_user,priority:2"`
	IsAdmin    bool           `json:"is_admin"    gorm:"not null;default:false"`
	CreatedAt  time.Time      `json:"created_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for ChatroomMember.
func (ChatroomMember) TableName() string { return "chatroom_members" }

// Message represents one half of a conversation turn inside a chatroom.
// Author is "user" for inbound messages and "agent" for replies produced by
// the scheduling agent.
//
// The user half of a turn is persisted before any model call is made, so user
// input survives an agent failure; the agent half is persisted before the
// turn's response leaves the transport layer.
type Message struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	ChatroomID string         `json:"chatroom_id" gorm:"type:char(36);not null;index:idx_room_msgs,priority:1"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;index"`
	Author     string         `json:"author"      gorm:"type:varchar(16);not null;check:author IN ('user','agent')"`
	Content    string         `json:"content"     gorm:"type:text;not null"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_room_msgs,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`

	Chatroom Chatroom `json:"-" gorm:"foreignKey:ChatroomID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// TaskType classifies a task by its academic origin.
type TaskType string

// Supported task types.
const (
	TaskAssignment TaskType = "assignment"
	TaskQuiz       TaskType = "quiz"
	TaskStudy      TaskType = "study"
	TaskOther      TaskType = "other"
)

// Valid reports whether t is one of the supported task types.
func (t TaskType) Valid() bool {
	switch t {
	case TaskAssignment, TaskQuiz, TaskStudy, TaskOther:
		return true
	}
	return false
}

// Task is a user-owned work item, either imported from Canvas or created by
// hand (directly or through the agent's create-task tool).
type Task struct {
	ID          string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string         `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_tasks"`
	Name        string         `json:"name"        gorm:"type:varchar(255);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Type        TaskType       `json:"type"        gorm:"type:varchar(16);not null;default:'other';check:type IN ('assignment','quiz','study','other')"`
	StartAt     *time.Time     `json:"start_at,omitempty"`
	EndAt       *time.Time     `json:"end_at,omitempty"`
	DueAt       *time.Time     `json:"due_at,omitempty" gorm:"index"`
	Link        string         `json:"link,omitempty" gorm:"type:text"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string { return "tasks" }

// Subtask is one step of a task's work breakdown. Subtasks are generated as a
// batch by the model; regenerating replaces the previous batch for the task.
type Subtask struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	TaskID    string         `json:"task_id"   gorm:"type:char(36);not null;index"`
	Name      string         `json:"name"      gorm:"type:varchar(255);not null"`
	Position  int            `json:"position"  gorm:"not null;default:0"`
	Done      bool           `json:"done"      gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`

	Task Task `json:"-" gorm:"foreignKey:TaskID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Subtask.
func (Subtask) TableName() string { return "subtasks" }

// Course mirrors a Canvas course the user is enrolled in. Rows are upserted by
// the course sync job keyed on (user, canvas id).
type Course struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID     string         `json:"user_id"     gorm:"type:varchar(64);not null;uniqueIndex:ux_course_user_canvas,priority:1"`
	CanvasID   int64          `json:"canvas_id"   gorm:"not null;uniqueIndex:ux_course_user_canvas,priority:2"`
	Name       string         `json:"name"        gorm:"type:varchar(255);not null"`
	Code       string         `json:"code"        gorm:"type:varchar(64)"`
	Instructor string         `json:"instructor"  gorm:"type:varchar(255)"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-"           gorm:"index"`
}

// TableName returns the database table name for Course.
func (Course) TableName() string { return "courses" }

// CourseMaterial is a document attached to a course (syllabus page, lecture
// file, module item) captured during course sync.
type CourseMaterial struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	CourseID  string         `json:"course_id"  gorm:"type:char(36);not null;index"`
	Name      string         `json:"name"       gorm:"type:varchar(255);not null"`
	Kind      string         `json:"kind"       gorm:"type:varchar(32);not null;default:'file'"`
	URL       string         `json:"url"        gorm:"type:text"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"          gorm:"index"`

	Course Course `json:"-" gorm:"foreignKey:CourseID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CourseMaterial.
func (CourseMaterial) TableName() string { return "course_materials" }
