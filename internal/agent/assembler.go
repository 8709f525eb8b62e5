package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/hai-app/go-study-backend/internal/domain"
	"github.com/hai-app/go-study-backend/internal/llm"
	"github.com/hai-app/go-study-backend/internal/repo"
)

// Prompt validation failures surfaced to the transport layer.
var (
	ErrEmptyPrompt   = errors.New("prompt is empty")
	ErrPromptTooLong = errors.New("prompt exceeds maximum length")
)

const systemPrompt = `You are a study assistant for a university student. You help them keep track of coursework, deadlines, tasks, and their calendar.

Use the available tools to look up real data before answering questions about courses, assignments, grades, tasks, or calendar events. If a tool reports an error, tell the user plainly what went wrong and what they can do about it (for example connecting an integration). Keep answers short and concrete.`

// fallbackReply is sent when the model spends every round on tool calls and
// the closing completion also fails to produce text.
const fallbackReply = "I gathered some information but couldn't put together a full answer. Please try asking again."

// Completer is the slice of the model client the assembler needs.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req *llm.ChatCompletionRequest) (*llm.ChatCompletionResponse, error)
}

// TurnResult is everything one agent turn produced.
type TurnResult struct {
	UserMessage  *domain.Message `json:"user_message"`
	AgentMessage *domain.Message `json:"agent_message"`
	Invocations  []Invocation    `json:"invocations"`
	Actions      []string        `json:"actions,omitempty"`
}

// Assembler runs agent turns: it persists the user's message, drives the
// model/tool loop, and persists the agent's reply before returning it.
type Assembler struct {
	DB       *gorm.DB
	Model    Completer
	Registry *Registry
	Sessions *Sessions

	MaxToolRounds   int
	HistoryMessages int
	MaxPromptRunes  int
}

// HandleTurn processes one user prompt in a chatroom.
//
// The user message is persisted before the first model call so it survives
// any downstream failure, and the agent message is persisted before the
// result is returned. Tool failures are recorded as invocation data and do
// not abort the turn; model failures do, and also drop the user's cached
// sessions so the next turn rebuilds from persisted history.
func (a *Assembler) HandleTurn(ctx context.Context, userID, chatroomID, prompt string) (*TurnResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	if a.MaxPromptRunes > 0 && utf8.RuneCountInString(prompt) > a.MaxPromptRunes {
		return nil, ErrPromptTooLong
	}

	// History is read before the user message is written so the prompt
	// appears exactly once in the working list.
	msgs := a.conversation(userID, chatroomID)

	userMsg, err := repo.CreateMessage(a.DB, chatroomID, userID, "user", prompt)
	if err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	ctx = WithUser(ctx, userID)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: prompt})

	var invocations []Invocation
	var reply string
	tools := a.Registry.ChatTools()

	for round := 0; ; round++ {
		if round >= a.MaxToolRounds {
			// Round cap reached: one closing completion without tools
			// forces the model to answer from what it has.
			reply, err = a.complete(ctx, msgs, nil)
			if err != nil {
				a.Sessions.Invalidate(userID)
				return nil, err
			}
			if reply == "" {
				reply = fallbackReply
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: reply})
			break
		}

		resp, err := a.Model.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
			Messages: msgs,
			Tools:    tools,
		})
		if err != nil {
			a.Sessions.Invalidate(userID)
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		choice := resp.FirstChoice()
		if choice == nil {
			a.Sessions.Invalidate(userID)
			return nil, errors.New("chat completion returned no choices")
		}

		msgs = append(msgs, choice.Message)
		if len(choice.Message.ToolCalls) == 0 {
			reply = choice.Message.Content
			break
		}

		for _, call := range choice.Message.ToolCalls {
			inv := a.Registry.Dispatch(ctx, call)
			invocations = append(invocations, inv)
			msgs = append(msgs, llm.Message{
				Role:       llm.RoleTool,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
				Content:    inv.Output,
			})
		}
	}

	agentMsg, err := repo.CreateMessage(a.DB, chatroomID, userID, "agent", reply)
	if err != nil {
		a.Sessions.Invalidate(userID)
		return nil, fmt.Errorf("persist agent message: %w", err)
	}

	a.Sessions.Put(userID, chatroomID, trimConversation(msgs, a.HistoryMessages))
	log.Debug().
		Str("chatroom_id", chatroomID).
		Int("invocations", len(invocations)).
		Msg("agent turn complete")

	return &TurnResult{
		UserMessage:  userMsg,
		AgentMessage: agentMsg,
		Invocations:  invocations,
		Actions:      actionsFrom(invocations),
	}, nil
}

// conversation returns the working message list for the pair: the cached
// session when one exists, otherwise the system prompt plus recent persisted
// history. The just-received prompt is excluded either way; the caller
// appends it.
func (a *Assembler) conversation(userID, chatroomID string) []llm.Message {
	if cached, ok := a.Sessions.Get(userID, chatroomID); ok {
		return cached
	}

	msgs := []llm.Message{{Role: llm.RoleSystem, Content: systemPrompt}}
	history, err := repo.ListRecentMessages(a.DB, chatroomID, a.HistoryMessages)
	if err != nil {
		log.Warn().Err(err).Str("chatroom_id", chatroomID).Msg("agent: history load failed, starting fresh")
		return msgs
	}
	for _, m := range history {
		role := llm.RoleUser
		if m.Author == "agent" {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return msgs
}

// trimConversation caps a cached conversation at the system prompt plus the
// newest max messages, so long-lived rooms don't grow the cache without
// bound. The suffix never starts on a tool response whose originating
// assistant message was cut.
func trimConversation(msgs []llm.Message, max int) []llm.Message {
	if max <= 0 || len(msgs) <= max+1 {
		return msgs
	}
	start := len(msgs) - max
	for start < len(msgs) && msgs[start].Role == llm.RoleTool {
		start++
	}
	out := make([]llm.Message, 0, 1+len(msgs)-start)
	out = append(out, msgs[0])
	return append(out, msgs[start:]...)
}

func (a *Assembler) complete(ctx context.Context, msgs []llm.Message, tools []llm.ChatTool) (string, error) {
	resp, err := a.Model.CreateChatCompletion(ctx, &llm.ChatCompletionRequest{
		Messages: msgs,
		Tools:    tools,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	choice := resp.FirstChoice()
	if choice == nil {
		return "", errors.New("chat completion returned no choices")
	}
	return choice.Message.Content, nil
}

// actionsFrom maps successful side-effecting invocations to action tags the
// client can react to, e.g. refreshing a task list after the agent created
// one.
func actionsFrom(invocations []Invocation) []string {
	var actions []string
	seen := map[string]bool{}
	for _, inv := range invocations {
		if inv.State != StateResult {
			continue
		}
		var tag string
		switch inv.Tool {
		case "create_task":
			tag = "task_created"
		case "create_calendar_event":
			tag = "event_created"
		case "sync_calendar":
			tag = "calendar_synced"
		}
		if tag != "" && !seen[tag] {
			seen[tag] = true
			actions = append(actions, tag)
		}
	}
	return actions
}
