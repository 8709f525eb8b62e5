// Chatroom and agent-turn HTTP handlers.
//
// Endpoints:
//   - POST   /chatrooms                      (create)
//   - GET    /chatrooms                      (list)
//   - GET    /chatrooms/{id}                 (detail)
//   - PUT    /chatrooms/{id}/name            (rename, admin only)
//   - DELETE /chatrooms/{id}                 (delete, admin only)
//   - GET    /chatrooms/{id}/messages        (paginated history)
//   - POST   /chatrooms/{id}/messages        (agent turn)
//
// Handlers are transport-thin: validate input, call services, map errors.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hai-app/go-study-backend/internal/agent"
	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/http/middleware"
	"github.com/hai-app/go-study-backend/internal/services"
	"github.com/hai-app/go-study-backend/internal/utils"
)

// ChatroomService defines room lifecycle operations consumed by handlers.
type ChatroomService interface {
	Create(ctx context.Context, creatorID, name, roomType string, courseID *string, memberIDs []string) (*domain.Chatroom, error)
	List(ctx context.Context, userID string) ([]domain.Chatroom, error)
	Get(ctx context.Context, userID, roomID string) (*domain.Chatroom, error)
	Rename(ctx context.Context, userID, roomID, name string) error
	Delete(ctx context.Context, userID, roomID string) error
	Messages(ctx context.Context, userID, roomID string, page, pageSize int) ([]domain.Message, int64, error)
}

// ChatService runs agent turns.
type ChatService interface {
	Send(ctx context.Context, userID, roomID, prompt string) (*agent.TurnResult, string, error)
}

// userID extracts the authenticated user id from the Gin context (set by
// upstream auth middleware), falling back to the X-User-ID header and then a
// demo user, matching the local development setup.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// CreateChatroomRequest is the JSON payload for creating a room.
type CreateChatroomRequest struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	CourseID *string  `json:"course_id"`
	Members  []string `json:"members"`
}

// RenameChatroomRequest is the JSON payload for renaming a room.
type RenameChatroomRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255"`
}

// SendMessageRequest is the JSON payload for an agent turn.
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// TurnResponse is the reply to an agent turn.
type TurnResponse struct {
	ChatroomName string             `json:"chatroom_name"`
	UserMessage  *domain.Message    `json:"user_message"`
	AgentMessage *domain.Message    `json:"agent_message"`
	Invocations  []agent.Invocation `json:"invocations"`
	Actions      []string           `json:"actions,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListMessagesResponse wraps a page of messages.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 50
		maxPageSize     = 200
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// CreateChatroom creates a room with the caller as admin.
func (h *Handlers) CreateChatroom(c *gin.Context) {
	var req CreateChatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	room, err := h.roomSvc.Create(c.Request.Context(), userID(c), req.Name, req.Type, req.CourseID, req.Members)
	if err != nil {
		if errors.Is(err, services.ErrInvalidRoomType) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}
	ok(c, http.StatusCreated, room)
}

// ListChatrooms lists the caller's rooms.
func (h *Handlers) ListChatrooms(c *gin.Context) {
	rooms, err := h.roomSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"chatrooms": rooms})
}

// GetChatroom returns one room the caller is a member of.
func (h *Handlers) GetChatroom(c *gin.Context) {
	roomID := c.Param("id")
	if _, err := uuid.Parse(roomID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "chatroom id must be a UUID")
		return
	}

	room, err := h.roomSvc.Get(c.Request.Context(), userID(c), roomID)
	if err != nil {
		if errors.Is(err, services.ErrChatroomNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chatroom not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, room)
}

// RenameChatroom renames a room. Admin only.
func (h *Handlers) RenameChatroom(c *gin.Context) {
	roomID := c.Param("id")
	var req RenameChatroomRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1–255 chars)")
		return
	}

	if err := h.roomSvc.Rename(c.Request.Context(), userID(c), roomID, req.Name); err != nil {
		h.roomError(c, err)
		return
	}
	noContent(c)
}

// DeleteChatroom removes a room and its memberships. Admin only.
func (h *Handlers) DeleteChatroom(c *gin.Context) {
	if err := h.roomSvc.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		h.roomError(c, err)
		return
	}
	noContent(c)
}

// ListChatroomMessages returns a page of a room's history.
func (h *Handlers) ListChatroomMessages(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.roomSvc.Messages(c.Request.Context(), userID(c), c.Param("id"), page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrChatroomNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chatroom not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// PostChatroomMessage runs one agent turn in the room and returns both
// halves of the exchange plus the tool invocation record.
func (h *Handlers) PostChatroomMessage(c *gin.Context) {
	roomID := c.Param("id")
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "content required")
		return
	}

	result, roomName, err := h.chatSvc.Send(c.Request.Context(), userID(c), roomID, req.Content)
	if err != nil {
		middleware.AgentTurns.WithLabelValues("error").Inc()
		switch {
		case errors.Is(err, services.ErrChatroomNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chatroom not found")
		case errors.Is(err, agent.ErrEmptyPrompt), errors.Is(err, agent.ErrPromptTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeTurnFailed, err.Error())
		}
		return
	}

	middleware.AgentTurns.WithLabelValues("ok").Inc()
	for _, inv := range result.Invocations {
		middleware.AgentToolCalls.WithLabelValues(inv.Tool, string(inv.State)).Inc()
	}
	if result.Invocations == nil {
		result.Invocations = []agent.Invocation{}
	}

	ok(c, http.StatusCreated, TurnResponse{
		ChatroomName: roomName,
		UserMessage:  result.UserMessage,
		AgentMessage: result.AgentMessage,
		Invocations:  result.Invocations,
		Actions:      result.Actions,
	})
}

// roomError maps membership/admin failures on mutating room endpoints.
func (h *Handlers) roomError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrChatroomNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "chatroom not found")
	case errors.Is(err, services.ErrNotAdmin):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
