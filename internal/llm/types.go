package llm

import (
	"context"
	"encoding/json"
)

// Provider streams model output events for a request.
type Provider interface {
	Name() string
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Stream yields events until io.EOF.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Request represents a single model turn.
type Request struct {
	Model       string
	Messages    []Message
	Tools       []ToolSpec
	Temperature float32
	MaxTurns    int // Max tool rounds per user message (0 = use default)
	Debug       bool
}

// Role identifies a message role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// PartType identifies a message content part.
type PartType string

const (
	PartText       PartType = "text"
	PartToolCall   PartType = "tool_call"
	PartToolResult PartType = "tool_result"
)

// Message holds a role with structured parts.
type Message struct {
	Role  Role
	Parts []Part
}

// Part represents a single content part.
type Part struct {
	Type       PartType
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
}

// ToolSpec describes a callable tool.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

// ToolCall is a model-requested tool invocation. Arguments holds the raw
// JSON argument object exactly as the provider streamed it.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolCallDelta is one partial update to an in-progress tool call.
// ID and Name arrive only on the first delta of a given call; Arguments
// may carry a fragment on any delta including the first.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// ToolContentPartType tags a unit of tool output.
type ToolContentPartType string

const (
	ToolContentPartText  ToolContentPartType = "text"
	ToolContentPartImage ToolContentPartType = "image"
)

// ToolContentPart is a normalized unit of tool output: text or an image.
type ToolContentPart struct {
	Type      ToolContentPartType
	Text      string
	ImageData *ToolImageData
}

// ToolImageData holds an image payload as base64 with its media type.
type ToolImageData struct {
	MediaType string
	Base64    string
}

// ToolResult is the output from executing a tool call.
type ToolResult struct {
	ID      string
	Name    string
	Content []ToolContentPart
	IsError bool
}

// FinishReason is the provider's reason for ending a turn.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
)

// EventType describes streaming events.
type EventType string

const (
	EventTextDelta     EventType = "text_delta"
	EventToolCallDelta EventType = "tool_call_delta"
	EventTurnEnd       EventType = "turn_end"
	EventToolExecStart EventType = "tool_exec_start" // Emitted when tool execution begins
	EventToolExecEnd   EventType = "tool_exec_end"   // Emitted when tool execution completes
	EventUsage         EventType = "usage"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

// Event represents a streamed output update.
type Event struct {
	Type        EventType
	Text        string
	Delta       *ToolCallDelta
	Finish      FinishReason
	ToolCallID  string // For EventToolExecStart/End: ID of this tool invocation
	ToolName    string // For EventToolExecStart/End: name of tool being executed
	ToolConn    string // For EventToolExecStart/End: owning connection, if resolved
	ToolSuccess bool   // For EventToolExecEnd: whether tool execution succeeded
	Use         *Usage
	Err         error
}

// Usage captures token usage if available.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func SystemText(text string) Message {
	return Message{
		Role:  RoleSystem,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func UserText(text string) Message {
	return Message{
		Role:  RoleUser,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

func AssistantText(text string) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartText, Text: text}},
	}
}

// AssistantToolCallMessage creates the assistant turn that triggered a tool.
// Text streamed before the call is deliberately omitted: a turn resolves to
// exactly one outcome, matching the provider's own semantics.
func AssistantToolCallMessage(call ToolCall) Message {
	return Message{
		Role:  RoleAssistant,
		Parts: []Part{{Type: PartToolCall, ToolCall: &call}},
	}
}

func ToolResultMessage(id, name string, content []ToolContentPart) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: content,
			},
		}},
	}
}

// ToolErrorMessage creates a tool result carrying an error as text content.
// The error is passed to the model so it can react instead of failing the stream.
func ToolErrorMessage(id, name, errorText string) Message {
	return Message{
		Role: RoleTool,
		Parts: []Part{{
			Type: PartToolResult,
			ToolResult: &ToolResult{
				ID:      id,
				Name:    name,
				Content: []ToolContentPart{{Type: ToolContentPartText, Text: errorText}},
				IsError: true,
			},
		}},
	}
}

// TextContent wraps a plain string as a single text content part.
func TextContent(text string) []ToolContentPart {
	return []ToolContentPart{{Type: ToolContentPartText, Text: text}}
}
