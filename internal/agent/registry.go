package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/hai-app/go-study-backend/internal/llm"
)

// InvocationState classifies a recorded tool invocation.
type InvocationState string

// A tool call ends in exactly one of these states. Failure means the tool
// itself errored (unknown name, bad arguments, handler error); any output the
// tool produced, structured or plain text, is a result.
const (
	StateResult  InvocationState = "result"
	StateFailure InvocationState = "failure"
)

// Invocation is the record of one dispatched tool call, kept per turn and
// returned to the caller alongside the agent's message.
type Invocation struct {
	ID        string          `json:"id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
	Output    string          `json:"output"`
	State     InvocationState `json:"state"`
}

// Registry is the closed set of tools the agent may call. It is populated
// once at startup and never mutated afterwards, so reads need no locking.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Empty and duplicate names are rejected so a wiring
// mistake fails fast at startup.
func (r *Registry) Register(t Tool) error {
	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s is already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// ChatTools renders the registry as a chat-completions tools array in stable
// name order.
func (r *Registry) ChatTools() []llm.ChatTool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]llm.ChatTool, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		out = append(out, llm.ChatTool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return out
}

// Dispatch executes one model-requested call and always returns a completed
// Invocation. An unknown tool name, malformed arguments, or a handler error
// all land in the failure state; nothing here escalates to a Go error, so a
// single bad call never aborts the turn.
func (r *Registry) Dispatch(ctx context.Context, call llm.ToolCall) Invocation {
	inv := Invocation{
		ID:        call.ID,
		Tool:      call.Function.Name,
		Arguments: call.Function.Arguments,
	}

	tool, ok := r.tools[call.Function.Name]
	if !ok {
		inv.State = StateFailure
		inv.Output = fmt.Sprintf("unknown tool: %s", call.Function.Name)
		log.Warn().Str("tool", call.Function.Name).Msg("agent: model requested unknown tool")
		return inv
	}

	resp := tool.Execute(ctx, call.Function.Arguments)
	inv.Output = string(resp.Content)
	if resp.IsError {
		inv.State = StateFailure
		log.Debug().Str("tool", inv.Tool).Str("error", inv.Output).Msg("agent: tool failed")
	} else {
		inv.State = StateResult
	}
	return inv
}
