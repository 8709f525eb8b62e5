// Package agent implements the scheduling agent: a closed tool registry with
// schema-described tools, a dispatcher that records every invocation as data,
// and the turn assembler that drives the model loop and persists both halves
// of a conversation turn.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/swaggest/jsonschema-go"
)

// Response is the outcome of executing one tool. Handler failures are
// carried here rather than as Go errors so the model sees them as content
// and the turn keeps going.
type Response struct {
	Content []byte
	IsError bool
}

// Tool is one callable function exposed to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() *jsonschema.Schema
	Execute(ctx context.Context, args json.RawMessage) *Response
}

// Handler is a type-safe tool implementation.
type Handler[TInput any, TOutput any] func(ctx context.Context, input TInput) (TOutput, error)

// GenericTool adapts a typed handler to the Tool interface. The argument
// schema is reflected from TInput's struct tags at registration time.
type GenericTool[TInput any, TOutput any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	handler     Handler[TInput, TOutput]
}

// NewTool builds a GenericTool for the handler, reflecting a JSON schema
// from TInput. TInput must be a struct.
func NewTool[TInput any, TOutput any](name, description string, handler Handler[TInput, TOutput]) (Tool, error) {
	var input TInput
	if t := reflect.TypeOf(input); t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool %s: input type must be a struct", name)
	}

	reflector := jsonschema.Reflector{}
	schema, err := reflector.Reflect(input)
	if err != nil {
		return nil, fmt.Errorf("tool %s: reflect schema: %w", name, err)
	}

	return &GenericTool[TInput, TOutput]{
		name:        name,
		description: description,
		schema:      &schema,
		handler:     handler,
	}, nil
}

// MustNewTool is NewTool that panics on error; registration happens at
// startup where a bad tool definition is a programming error.
func MustNewTool[TInput any, TOutput any](name, description string, handler Handler[TInput, TOutput]) Tool {
	t, err := NewTool(name, description, handler)
	if err != nil {
		panic(err)
	}
	return t
}

// Name implements Tool.
func (t *GenericTool[TInput, TOutput]) Name() string { return t.name }

// Description implements Tool.
func (t *GenericTool[TInput, TOutput]) Description() string { return t.description }

// Parameters implements Tool.
func (t *GenericTool[TInput, TOutput]) Parameters() *jsonschema.Schema { return t.schema }

// Execute decodes the raw arguments into TInput, checks required fields, and
// runs the handler. Every failure path produces an error Response, never a
// panic or a Go error.
func (t *GenericTool[TInput, TOutput]) Execute(ctx context.Context, args json.RawMessage) *Response {
	var input TInput
	if len(args) > 0 {
		if err := json.Unmarshal(args, &input); err != nil {
			return errResponse("invalid arguments: %v", err)
		}
	}
	if err := t.validateRequired(input); err != nil {
		return errResponse("invalid arguments: %v", err)
	}

	output, err := t.handler(ctx, input)
	if err != nil {
		return errResponse("%v", err)
	}

	content, err := json.Marshal(output)
	if err != nil {
		return errResponse("encode result: %v", err)
	}
	return &Response{Content: content}
}

// validateRequired enforces the schema's required list against zero values,
// since json.Unmarshal happily leaves missing fields zeroed.
func (t *GenericTool[TInput, TOutput]) validateRequired(input TInput) error {
	if t.schema == nil || len(t.schema.Required) == 0 {
		return nil
	}
	val := reflect.ValueOf(input)
	typ := val.Type()

	for _, required := range t.schema.Required {
		for i := 0; i < typ.NumField(); i++ {
			name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
			if name != required {
				continue
			}
			if val.Field(i).IsZero() {
				return fmt.Errorf("required field %q is missing", required)
			}
			break
		}
	}
	return nil
}

func errResponse(format string, args ...any) *Response {
	return &Response{Content: []byte(fmt.Sprintf(format, args...)), IsError: true}
}
