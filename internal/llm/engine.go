package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// DefaultMaxTurns bounds the number of model rounds per user message. Each
// tool call consumes one round; hitting the cap is a hard error rather than a
// silent truncation.
const DefaultMaxTurns = 20

// ToolResolver maps a tool name to the connection that owns it.
type ToolResolver interface {
	FindOwner(name string) (conn string, ok bool)
}

// ToolInvoker executes a tool call on a named connection. Execution failures
// are returned as errors; the engine converts them to error results the model
// can read, so a failing tool never terminates the stream.
type ToolInvoker interface {
	Invoke(ctx context.Context, conn, tool string, args json.RawMessage) ([]ToolContentPart, error)
}

// TurnCompletedCallback is invoked after each completed round with the
// messages that round appended to the conversation. Callers use it to
// persist incrementally so a crash mid-stream loses at most one round.
type TurnCompletedCallback func(appended []Message)

// Engine drives the streaming tool-call loop: stream a completion, forward
// text deltas live, accumulate tool-call deltas, execute the finished call,
// append its result, and stream again until the model stops on its own.
type Engine struct {
	provider Provider
	resolver ToolResolver
	invoker  ToolInvoker
	streams  *streamSet

	onTurnCompleted TurnCompletedCallback
}

func NewEngine(provider Provider, resolver ToolResolver, invoker ToolInvoker) *Engine {
	return &Engine{
		provider: provider,
		resolver: resolver,
		invoker:  invoker,
		streams:  newStreamSet(),
	}
}

// SetTurnCompletedCallback registers cb to observe each completed round.
func (e *Engine) SetTurnCompletedCallback(cb TurnCompletedCallback) {
	e.onTurnCompleted = cb
}

// OpenStreams reports how many provider streams are currently registered.
func (e *Engine) OpenStreams() int {
	return e.streams.Len()
}

// Stream runs the tool-call loop for the conversation's latest user message.
// The conversation is extended in place as rounds complete. Cancelling ctx
// tears down any open provider stream and ends the loop with ctx's error.
func (e *Engine) Stream(ctx context.Context, conv *Conversation, req Request) Stream {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		return e.runLoop(ctx, conv, req, events)
	})
}

func (e *Engine) runLoop(ctx context.Context, conv *Conversation, req Request, events chan<- Event) error {
	defer e.streams.CloseAll()

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	for turn := 0; turn < maxTurns; turn++ {
		turnReq := req
		turnReq.Messages = conv.Messages()

		stream, err := e.provider.Stream(ctx, turnReq)
		if err != nil {
			return fmt.Errorf("starting completion: %w", err)
		}
		e.streams.Register(stream)

		if req.Debug {
			DebugRequest(turn, turnReq)
		}

		var (
			text    strings.Builder
			pending pendingToolCall
			finish  FinishReason
		)

	recv:
		for {
			event, err := stream.Recv()
			switch {
			case err == io.EOF:
				break recv
			case err != nil:
				e.streams.Close(stream)
				return err
			}

			switch event.Type {
			case EventTextDelta:
				text.WriteString(event.Text)
				events <- event
			case EventToolCallDelta:
				if err := pending.feed(*event.Delta); err != nil {
					e.streams.Close(stream)
					return err
				}
			case EventTurnEnd:
				finish = event.Finish
				break recv
			case EventUsage:
				events <- event
			case EventError:
				e.streams.Close(stream)
				return event.Err
			}
		}

		if finish != FinishToolCalls {
			// Natural completion: the stream drained on its own, so it only
			// needs to be untracked, not torn down.
			e.streams.Release(stream)
			if strings.TrimSpace(text.String()) != "" {
				appended := []Message{AssistantText(text.String())}
				conv.Append(appended...)
				e.notifyTurnCompleted(appended)
			}
			events <- Event{Type: EventDone}
			return nil
		}

		if !pending.active() {
			e.streams.Close(stream)
			return fmt.Errorf("provider reported tool_calls finish with no tool call deltas")
		}

		call, err := pending.finalize()
		if err != nil {
			e.streams.Close(stream)
			return err
		}
		if call.ID == "" {
			call.ID = fmt.Sprintf("toolcall-%d", turn+1)
		}

		// The completion stream is finished before the tool runs: tool
		// execution must never race a live stream from the same round.
		e.streams.Close(stream)

		// Appending the call and its result is atomic with respect to
		// cancellation. Once the assistant turn is recorded the result turn
		// must follow, or the log would be rejected on the next request.
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, _ := e.resolver.FindOwner(call.Name)
		events <- Event{Type: EventToolExecStart, ToolCallID: call.ID, ToolName: call.Name, ToolConn: conn}

		if req.Debug {
			DebugToolCall(call)
		}

		resultMsg, success := e.dispatchToolCall(ctx, conn, call)

		// A cancellation observed during tool execution abandons the round:
		// the call and its result are appended together or not at all.
		if err := ctx.Err(); err != nil {
			return err
		}

		events <- Event{Type: EventToolExecEnd, ToolCallID: call.ID, ToolName: call.Name, ToolConn: conn, ToolSuccess: success}

		if req.Debug {
			if result := resultMsg.Parts[0].ToolResult; result != nil {
				DebugToolResult(call.ID, call.Name, result.Content)
			}
		}

		appended := []Message{AssistantToolCallMessage(call), resultMsg}
		conv.Append(appended...)
		e.notifyTurnCompleted(appended)
	}

	return fmt.Errorf("model exceeded %d tool rounds without completing", maxTurns)
}

// dispatchToolCall executes the call and always produces a tool-role message.
// Unknown tools and execution failures become error results addressed to the
// model rather than terminating the stream.
func (e *Engine) dispatchToolCall(ctx context.Context, conn string, call ToolCall) (Message, bool) {
	if conn == "" {
		return ToolErrorMessage(call.ID, call.Name, fmt.Sprintf("Error: tool %q is not available", call.Name)), false
	}

	content, err := e.invoker.Invoke(ctx, conn, call.Name, call.Arguments)
	if err != nil {
		return ToolErrorMessage(call.ID, call.Name, fmt.Sprintf("Error executing tool: %v", err)), false
	}
	return ToolResultMessage(call.ID, call.Name, content), true
}

func (e *Engine) notifyTurnCompleted(appended []Message) {
	if e.onTurnCompleted != nil {
		e.onTurnCompleted(appended)
	}
}
