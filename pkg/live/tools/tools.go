// Package tools implements the function-calling surface exposed to the model:
// safety-event logging, work-order creation, and badge verification. Every
// execution returns a structured result map; failures are reported inside the
// result so the model can narrate them, never as transport errors.
package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SunnyYadav16/field-vision/pkg/live/state"
)

// Result is the JSON-shaped payload returned to the model as the function
// response.
type Result map[string]any

func errorResult(message string) Result {
	return Result{"status": "error", "message": message}
}

// Property describes one parameter in a tool schema.
type Property struct {
	Type        string
	Description string
	Enum        []string
}

// Declaration is the model-visible schema for one tool.
type Declaration struct {
	Name        string
	Description string
	Properties  map[string]Property
	Required    []string
}

// Executor is one callable tool.
type Executor interface {
	Name() string
	Declaration() Declaration
	Execute(ctx context.Context, sess *state.Session, args map[string]any) Result
}

// Registry routes function calls by name and validates required arguments
// against each tool's declaration before execution.
type Registry struct {
	logger *slog.Logger
	order  []string
	byName map[string]Executor
}

func NewRegistry(logger *slog.Logger, executors ...Executor) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger, byName: make(map[string]Executor)}
	for _, ex := range executors {
		if _, dup := r.byName[ex.Name()]; dup {
			continue
		}
		r.byName[ex.Name()] = ex
		r.order = append(r.order, ex.Name())
	}
	return r
}

// Declarations returns tool schemas in registration order.
func (r *Registry) Declarations() []Declaration {
	out := make([]Declaration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name].Declaration())
	}
	return out
}

// Dispatch executes the named tool. Unknown names and missing required
// arguments come back as error results.
func (r *Registry) Dispatch(ctx context.Context, sess *state.Session, name string, args map[string]any) Result {
	ex, ok := r.byName[name]
	if !ok {
		r.logger.Warn("unknown function call", "function", name)
		return errorResult(fmt.Sprintf("Unknown function: %s", name))
	}
	if args == nil {
		args = map[string]any{}
	}
	decl := ex.Declaration()
	for _, required := range decl.Required {
		if _, present := args[required]; !present {
			return errorResult(fmt.Sprintf("missing required argument: %s", required))
		}
	}
	r.logger.Info("executing tool", "function", name, "session_id", sess.ID)
	return ex.Execute(ctx, sess, args)
}

// stringArg coerces an argument to string; absent or mistyped values come
// back as the fallback.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intArg handles JSON numbers arriving as float64 alongside native ints.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}
