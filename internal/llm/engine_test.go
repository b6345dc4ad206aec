package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeTools implements ToolResolver and ToolInvoker with canned results.
type fakeTools struct {
	mu      sync.Mutex
	owners  map[string]string
	results map[string][]ToolContentPart
	errs    map[string]error
	calls   []ToolCall
}

func newFakeTools() *fakeTools {
	return &fakeTools{
		owners:  make(map[string]string),
		results: make(map[string][]ToolContentPart),
		errs:    make(map[string]error),
	}
}

func (f *fakeTools) addTool(conn, name string, result []ToolContentPart) {
	f.owners[name] = conn
	f.results[name] = result
}

func (f *fakeTools) addFailingTool(conn, name string, err error) {
	f.owners[name] = conn
	f.errs[name] = err
}

func (f *fakeTools) FindOwner(name string) (string, bool) {
	conn, ok := f.owners[name]
	return conn, ok
}

func (f *fakeTools) Invoke(ctx context.Context, conn, tool string, args json.RawMessage) ([]ToolContentPart, error) {
	f.mu.Lock()
	f.calls = append(f.calls, ToolCall{ID: conn, Name: tool, Arguments: args})
	f.mu.Unlock()
	if err, ok := f.errs[tool]; ok {
		return nil, err
	}
	return f.results[tool], nil
}

func (f *fakeTools) invocations() []ToolCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ToolCall(nil), f.calls...)
}

// scriptProvider emits a fixed event script per turn, for shapes the mock
// provider can't produce.
type scriptProvider struct {
	turns [][]Event
	idx   int
}

func (p *scriptProvider) Name() string { return "script" }

func (p *scriptProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	if p.idx >= len(p.turns) {
		return nil, fmt.Errorf("script provider: no turn %d", p.idx)
	}
	events := p.turns[p.idx]
	p.idx++
	return newEventStream(ctx, func(ctx context.Context, ch chan<- Event) error {
		for _, event := range events {
			select {
			case ch <- event:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	}), nil
}

func drainEngine(t *testing.T, stream Stream) ([]Event, error) {
	t.Helper()
	defer stream.Close()
	var events []Event
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, event)
	}
}

func TestEngine_PlainTextResponse(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddTextResponse("Just an answer.")
	engine := NewEngine(provider, newFakeTools(), newFakeTools())

	conv := NewConversation(UserText("hello"))
	events, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}

	var text string
	for _, event := range events {
		if event.Type == EventTextDelta {
			text += event.Text
		}
	}
	if text != "Just an answer." {
		t.Errorf("streamed text = %q", text)
	}
	if events[len(events)-1].Type != EventDone {
		t.Errorf("last event = %+v, want done", events[len(events)-1])
	}

	messages := conv.Messages()
	if len(messages) != 2 {
		t.Fatalf("conversation has %d messages, want 2", len(messages))
	}
	if messages[1].Role != RoleAssistant || messages[1].Parts[0].Text != "Just an answer." {
		t.Errorf("assistant message = %+v", messages[1])
	}
	if engine.OpenStreams() != 0 {
		t.Errorf("OpenStreams() = %d, want 0", engine.OpenStreams())
	}
}

func TestEngine_ToolCallRoundTrip(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCallFragments("call_1", "get_table_schema", `{"tab`, `le_name": "sal`, `es"}`)
	provider.AddTextResponse("The sales table has three columns.")

	tools := newFakeTools()
	tools.addTool("warehouse", "get_table_schema", TextContent("| column | type |\n| id | bigint |"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(
		SystemText("You are a data analyst."),
		UserText("what does the sales table look like?"),
	)
	events, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}

	// Exactly one invocation with the assembled arguments.
	calls := tools.invocations()
	if len(calls) != 1 {
		t.Fatalf("tool invoked %d times, want 1", len(calls))
	}
	if string(calls[0].Arguments) != `{"table_name": "sales"}` {
		t.Errorf("invoked args = %q", calls[0].Arguments)
	}

	messages := conv.Messages()
	if len(messages) != 5 {
		t.Fatalf("conversation has %d messages, want 5", len(messages))
	}
	roles := []Role{RoleSystem, RoleUser, RoleAssistant, RoleTool, RoleAssistant}
	for i, want := range roles {
		if messages[i].Role != want {
			t.Errorf("message[%d].Role = %q, want %q", i, messages[i].Role, want)
		}
	}
	if messages[2].Parts[0].Type != PartToolCall || messages[2].Parts[0].ToolCall.ID != "call_1" {
		t.Errorf("assistant tool-call message = %+v", messages[2])
	}
	result := messages[3].Parts[0].ToolResult
	if result.ID != "call_1" || result.IsError {
		t.Errorf("tool result = %+v", result)
	}

	// The second request must replay the call and its result in order.
	if len(provider.Requests) != 2 {
		t.Fatalf("provider saw %d requests, want 2", len(provider.Requests))
	}
	replay := provider.Requests[1].Messages
	if replay[2].Parts[0].Type != PartToolCall || replay[3].Parts[0].Type != PartToolResult {
		t.Errorf("second request messages out of order: %+v", replay)
	}

	var execStart, execEnd bool
	for _, event := range events {
		switch event.Type {
		case EventToolExecStart:
			execStart = true
			if event.ToolName != "get_table_schema" || event.ToolConn != "warehouse" {
				t.Errorf("exec start = %+v", event)
			}
		case EventToolExecEnd:
			execEnd = true
			if !event.ToolSuccess {
				t.Error("exec end should report success")
			}
		}
	}
	if !execStart || !execEnd {
		t.Error("expected tool exec start and end events")
	}
}

func TestEngine_PreToolTextStreamedButNotLogged(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddTurn(MockTurn{
		Text:         "Let me check the schema.",
		ToolCallID:   "call_1",
		ToolCallName: "list_tables",
	})
	provider.AddTextResponse("Done.")

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("check it"))
	events, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}

	var streamed string
	for _, event := range events {
		if event.Type == EventTextDelta {
			streamed += event.Text
		}
	}
	if !strings.Contains(streamed, "Let me check the schema.") {
		t.Errorf("pre-call text was not streamed: %q", streamed)
	}

	// The logged assistant turn holds only the call, never the aside.
	assistant := conv.Messages()[1]
	for _, part := range assistant.Parts {
		if part.Type == PartText {
			t.Errorf("assistant tool-call message carries text: %q", part.Text)
		}
	}
}

func TestEngine_UnknownToolContinues(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCall("call_1", "nonexistent_tool", map[string]string{})
	provider.AddTextResponse("I could not use that tool.")

	engine := NewEngine(provider, newFakeTools(), newFakeTools())
	conv := NewConversation(UserText("try the tool"))
	events, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	if err != nil {
		t.Fatalf("unknown tool should not fail the stream, got %v", err)
	}

	result := conv.Messages()[2].Parts[0].ToolResult
	if !result.IsError {
		t.Error("unknown tool result should be marked as error")
	}
	if !strings.Contains(result.Content[0].Text, "nonexistent_tool") {
		t.Errorf("error text = %q", result.Content[0].Text)
	}

	for _, event := range events {
		if event.Type == EventToolExecEnd && event.ToolSuccess {
			t.Error("exec end should report failure for unknown tool")
		}
	}
}

func TestEngine_ToolErrorIsDataNotFailure(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCall("call_1", "run_query", map[string]string{"sql": "DROP TABLE sales"})
	provider.AddTextResponse("That query is not allowed.")

	tools := newFakeTools()
	tools.addFailingTool("warehouse", "run_query", errors.New("dangerous keyword: DROP"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("drop the table"))
	if _, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{})); err != nil {
		t.Fatalf("tool failure should not fail the stream, got %v", err)
	}

	result := conv.Messages()[2].Parts[0].ToolResult
	if !result.IsError {
		t.Error("failing tool result should be marked as error")
	}
	if !strings.Contains(result.Content[0].Text, "dangerous keyword") {
		t.Errorf("error text = %q", result.Content[0].Text)
	}
	if conv.Messages()[3].Parts[0].Text != "That query is not allowed." {
		t.Errorf("final message = %+v", conv.Messages()[3])
	}
}

func TestEngine_ChainedToolCalls(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCall("call_1", "list_tables", map[string]string{})
	provider.AddToolCall("call_2", "get_table_schema", map[string]string{"table_name": "sales"})
	provider.AddTextResponse("Summary of everything.")

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	tools.addTool("warehouse", "get_table_schema", TextContent("| id | bigint |"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("describe the warehouse"))
	if _, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{})); err != nil {
		t.Fatalf("stream error = %v", err)
	}

	calls := tools.invocations()
	if len(calls) != 2 || calls[0].Name != "list_tables" || calls[1].Name != "get_table_schema" {
		t.Fatalf("invocations = %+v", calls)
	}

	// user, call, result, call, result, final answer
	if got := conv.Len(); got != 6 {
		t.Errorf("conversation length = %d, want 6", got)
	}
}

func TestEngine_MaxTurnsExceeded(t *testing.T) {
	provider := NewMockProvider("test")
	for i := 0; i < 3; i++ {
		provider.AddToolCall(fmt.Sprintf("call_%d", i), "list_tables", map[string]string{})
	}

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("loop forever"))
	_, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{MaxTurns: 2}))
	if err == nil || !strings.Contains(err.Error(), "2 tool rounds") {
		t.Fatalf("error = %v, want max rounds exceeded", err)
	}
}

func TestEngine_ProtocolViolationIsFatal(t *testing.T) {
	provider := &scriptProvider{turns: [][]Event{{
		{Type: EventToolCallDelta, Delta: &ToolCallDelta{ID: "call_1", Name: "list_tables"}},
		{Type: EventToolCallDelta, Delta: &ToolCallDelta{ID: "call_2", Name: "run_query", Index: 1}},
		{Type: EventTurnEnd, Finish: FinishToolCalls},
	}}}

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("go"))
	_, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	var violation *ProtocolViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("error = %v, want protocol violation", err)
	}
	if len(tools.invocations()) != 0 {
		t.Error("no tool should run after a protocol violation")
	}
	if conv.Len() != 1 {
		t.Errorf("conversation length = %d, want 1 (nothing appended)", conv.Len())
	}
}

func TestEngine_MalformedArgumentsIsFatal(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCallFragments("call_1", "run_query", `{"sql": "SELECT`)

	tools := newFakeTools()
	tools.addTool("warehouse", "run_query", TextContent("ok"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("go"))
	_, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	var malformed *MalformedToolCallError
	if !errors.As(err, &malformed) {
		t.Fatalf("error = %v, want malformed tool call", err)
	}
	if malformed.Raw != `{"sql": "SELECT` {
		t.Errorf("Raw = %q", malformed.Raw)
	}
	if len(tools.invocations()) != 0 {
		t.Error("malformed call must not be executed")
	}
}

func TestEngine_FinishToolCallsWithoutDeltas(t *testing.T) {
	provider := &scriptProvider{turns: [][]Event{{
		{Type: EventTurnEnd, Finish: FinishToolCalls},
	}}}
	engine := NewEngine(provider, newFakeTools(), newFakeTools())

	conv := NewConversation(UserText("go"))
	_, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{}))
	if err == nil || !strings.Contains(err.Error(), "no tool call deltas") {
		t.Fatalf("error = %v", err)
	}
}

func TestEngine_SynthesizesCallID(t *testing.T) {
	provider := &scriptProvider{turns: [][]Event{
		{
			{Type: EventToolCallDelta, Delta: &ToolCallDelta{Name: "list_tables"}},
			{Type: EventTurnEnd, Finish: FinishToolCalls},
		},
		{
			{Type: EventTextDelta, Text: "done"},
			{Type: EventTurnEnd, Finish: FinishStop},
		},
	}}

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	engine := NewEngine(provider, tools, tools)

	conv := NewConversation(UserText("go"))
	if _, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{})); err != nil {
		t.Fatalf("stream error = %v", err)
	}

	call := conv.Messages()[1].Parts[0].ToolCall
	if call.ID != "toolcall-1" {
		t.Errorf("synthesized ID = %q, want %q", call.ID, "toolcall-1")
	}
	result := conv.Messages()[2].Parts[0].ToolResult
	if result.ID != call.ID {
		t.Errorf("result ID %q does not match call ID %q", result.ID, call.ID)
	}
}

func TestEngine_CancelMidStream(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddTurn(MockTurn{Text: "Slow answer", Delay: 5 * time.Second})
	engine := NewEngine(provider, newFakeTools(), newFakeTools())

	ctx, cancel := context.WithCancel(context.Background())
	conv := NewConversation(UserText("go"))
	stream := engine.Stream(ctx, conv, Request{})
	defer stream.Close()

	cancel()

	var err error
	for {
		_, err = stream.Recv()
		if err != nil {
			break
		}
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if conv.Len() != 1 {
		t.Errorf("cancelled stream appended messages: %d", conv.Len())
	}
}

// invokerFunc adapts a function to ToolInvoker.
type invokerFunc func(ctx context.Context, conn, tool string, args json.RawMessage) ([]ToolContentPart, error)

func (f invokerFunc) Invoke(ctx context.Context, conn, tool string, args json.RawMessage) ([]ToolContentPart, error) {
	return f(ctx, conn, tool, args)
}

func TestEngine_CancelDuringToolDispatch(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCall("call_1", "list_tables", map[string]string{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	invoker := invokerFunc(func(ictx context.Context, conn, tool string, args json.RawMessage) ([]ToolContentPart, error) {
		cancel()
		return nil, ictx.Err()
	})
	engine := NewEngine(provider, tools, invoker)

	var callbacks int
	engine.SetTurnCompletedCallback(func([]Message) { callbacks++ })

	conv := NewConversation(UserText("go"))
	_, err := drainEngine(t, engine.Stream(ctx, conv, Request{}))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	// Give the producer goroutine time to finish before inspecting the log.
	time.Sleep(100 * time.Millisecond)
	if conv.Len() != 1 {
		t.Errorf("cancelled dispatch appended messages: %d, want 1", conv.Len())
	}
	if callbacks != 0 {
		t.Errorf("turn callback fired %d times after cancellation, want 0", callbacks)
	}
}

func TestEngine_TurnCompletedCallback(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddToolCall("call_1", "list_tables", map[string]string{})
	provider.AddTextResponse("done")

	tools := newFakeTools()
	tools.addTool("warehouse", "list_tables", TextContent("sales"))
	engine := NewEngine(provider, tools, tools)

	var batches [][]Message
	engine.SetTurnCompletedCallback(func(appended []Message) {
		batches = append(batches, appended)
	})

	conv := NewConversation(UserText("go"))
	if _, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{})); err != nil {
		t.Fatalf("stream error = %v", err)
	}

	if len(batches) != 2 {
		t.Fatalf("callback fired %d times, want 2", len(batches))
	}
	if len(batches[0]) != 2 || batches[0][0].Role != RoleAssistant || batches[0][1].Role != RoleTool {
		t.Errorf("first batch = %+v", batches[0])
	}
	if len(batches[1]) != 1 || batches[1][0].Role != RoleAssistant {
		t.Errorf("second batch = %+v", batches[1])
	}
}

func TestEngine_WhitespaceOnlyAnswerNotLogged(t *testing.T) {
	provider := NewMockProvider("test")
	provider.AddTextResponse("  \n ")
	engine := NewEngine(provider, newFakeTools(), newFakeTools())

	conv := NewConversation(UserText("go"))
	if _, err := drainEngine(t, engine.Stream(context.Background(), conv, Request{})); err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if conv.Len() != 1 {
		t.Errorf("whitespace-only answer was logged: %d messages", conv.Len())
	}
}
