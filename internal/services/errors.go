// Package services defines the business logic for chatrooms, tasks, courses,
// integrations, and the agent chat surface. This file centralizes the
// service-level error values so handlers can translate them into HTTP
// results consistently.
package services

import "errors"

// Chatroom-related errors.
var (
	// ErrChatroomNotFound indicates the room does not exist or the user is
	// not a member of it.
	ErrChatroomNotFound = errors.New("chatroom not found")

	// ErrNotAdmin is returned when a non-admin member attempts rename or
	// delete.
	ErrNotAdmin = errors.New("only the room admin can do this")

	// ErrInvalidRoomType is returned for room types outside direct/group.
	ErrInvalidRoomType = errors.New("invalid chatroom type")
)

// Task and course errors.
var (
	// ErrTaskNotFound indicates the task does not exist or belongs to
	// another user.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTaskType is returned for task types outside the supported
	// set.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrEmptyTaskName is returned when a task is created without a name.
	ErrEmptyTaskName = errors.New("task name is empty")

	// ErrCourseNotFound indicates the course does not exist or belongs to
	// another user.
	ErrCourseNotFound = errors.New("course not found")

	// ErrSubtaskGeneration is returned when the model produces no usable
	// subtask breakdown for a task.
	ErrSubtaskGeneration = errors.New("subtask generation failed")
)

// Integration errors.
var (
	// ErrInvalidProvider is returned for providers outside canvas/google.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrIntegrationNotFound indicates no stored credential for the
	// (user, provider) pair.
	ErrIntegrationNotFound = errors.New("integration not found")

	// ErrEmptyToken is returned when a connect request carries no token.
	ErrEmptyToken = errors.New("token is empty")
)
