package services

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hai-app/go-study-backend/internal/agent"
)

// ChatService is the entry point for agent turns. It enforces room
// membership, delegates the turn to the assembler, and auto-titles
// placeholder rooms from their first prompt.
type ChatService struct {
	Rooms     *ChatroomService
	Assembler *agent.Assembler
}

// NewChatService constructs a ChatService.
func NewChatService(rooms *ChatroomService, asm *agent.Assembler) *ChatService {
	return &ChatService{Rooms: rooms, Assembler: asm}
}

// Send processes one user prompt in a chatroom and returns the completed
// turn. Membership is checked before any persistence happens; prompt
// validation errors (agent.ErrEmptyPrompt, agent.ErrPromptTooLong) pass
// through for the handler to map.
func (s *ChatService) Send(ctx context.Context, userID, roomID, prompt string) (*agent.TurnResult, string, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "Send",
		trace.WithAttributes(
			attribute.String("chatroom.id", roomID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()

	room, err := s.Rooms.Get(ctx, userID, roomID)
	if err != nil {
		return nil, "", err
	}

	result, err := s.Assembler.HandleTurn(ctx, userID, roomID, prompt)
	if err != nil {
		return nil, "", err
	}

	name := s.Rooms.MaybeAutoTitle(ctx, roomID, room.Name, result.UserMessage.Content)
	return result, name, nil
}
