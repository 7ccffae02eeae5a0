package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID    contextKey = "trace_id"
	keyTurnID     contextKey = "turn_id"
	keyAgentID    contextKey = "agent_id"
	keyScenarioID contextKey = "scenario_id"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithTurnID adds turn ID to context.
func WithTurnID(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, keyTurnID, turnID)
}

// TurnID extracts turn ID from context.
func TurnID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTurnID).(string)
	return v, ok && v != ""
}

// WithAgentID adds agent ID to context.
func WithAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, keyAgentID, agentID)
}

// AgentID extracts agent ID from context.
func AgentID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyAgentID).(string)
	return v, ok && v != ""
}

// WithScenarioID adds scenario ID to context.
func WithScenarioID(ctx context.Context, scenarioID string) context.Context {
	return context.WithValue(ctx, keyScenarioID, scenarioID)
}

// ScenarioID extracts scenario ID from context.
func ScenarioID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyScenarioID).(string)
	return v, ok && v != ""
}
