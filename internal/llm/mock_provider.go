package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockTurn scripts one completion round of a MockProvider.
type MockTurn struct {
	// Text is streamed as text deltas before the turn finishes.
	Text string

	// ToolCallID and ToolCallName, when set, end the turn with finish reason
	// tool_calls. ArgFragments are streamed as separate argument deltas; a
	// call with no fragments streams no argument text at all.
	ToolCallID   string
	ToolCallName string
	ArgFragments []string

	// Err aborts the stream after any text was emitted.
	Err error

	// Delay is applied before any events are emitted.
	Delay time.Duration
}

// MockProvider replays scripted turns and records every request it receives.
// Each Stream call consumes the next scripted turn.
type MockProvider struct {
	name  string
	turns []MockTurn

	mu       sync.Mutex
	turnIdx  int
	Requests []Request
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{name: name}
}

func (p *MockProvider) Name() string {
	return p.name
}

// AddTextResponse scripts a turn that streams text and stops.
func (p *MockProvider) AddTextResponse(text string) *MockProvider {
	return p.AddTurn(MockTurn{Text: text})
}

// AddToolCall scripts a turn that requests one tool call. Arguments are
// marshaled and streamed as a single fragment.
func (p *MockProvider) AddToolCall(id, name string, args any) *MockProvider {
	data, err := json.Marshal(args)
	if err != nil {
		panic(fmt.Sprintf("mock tool call args: %v", err))
	}
	return p.AddTurn(MockTurn{
		ToolCallID:   id,
		ToolCallName: name,
		ArgFragments: []string{string(data)},
	})
}

// AddToolCallFragments scripts a tool call whose argument text arrives split
// across the given fragments, mimicking real delta streaming.
func (p *MockProvider) AddToolCallFragments(id, name string, fragments ...string) *MockProvider {
	return p.AddTurn(MockTurn{
		ToolCallID:   id,
		ToolCallName: name,
		ArgFragments: fragments,
	})
}

// AddError scripts a turn whose stream fails with err.
func (p *MockProvider) AddError(err error) *MockProvider {
	return p.AddTurn(MockTurn{Err: err})
}

func (p *MockProvider) AddTurn(turn MockTurn) *MockProvider {
	p.turns = append(p.turns, turn)
	return p
}

// Reset clears recorded requests and rewinds to the first scripted turn.
func (p *MockProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.turnIdx = 0
	p.Requests = nil
}

// CurrentTurn reports the index of the next scripted turn.
func (p *MockProvider) CurrentTurn() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.turnIdx
}

func (p *MockProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	p.mu.Lock()
	if p.turnIdx >= len(p.turns) {
		p.mu.Unlock()
		return nil, fmt.Errorf("mock provider: no scripted turn for request %d", len(p.Requests)+1)
	}
	turn := p.turns[p.turnIdx]
	p.turnIdx++
	p.Requests = append(p.Requests, req)
	p.mu.Unlock()

	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		if turn.Delay > 0 {
			select {
			case <-time.After(turn.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, chunk := range chunkText(turn.Text, 10) {
			select {
			case events <- Event{Type: EventTextDelta, Text: chunk}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if turn.Err != nil {
			return turn.Err
		}

		if turn.ToolCallName != "" {
			first := Event{Type: EventToolCallDelta, Delta: &ToolCallDelta{
				ID:   turn.ToolCallID,
				Name: turn.ToolCallName,
			}}
			if len(turn.ArgFragments) > 0 {
				first.Delta.Arguments = turn.ArgFragments[0]
			}
			events <- first
			for _, fragment := range turn.ArgFragments[min(1, len(turn.ArgFragments)):] {
				events <- Event{Type: EventToolCallDelta, Delta: &ToolCallDelta{Arguments: fragment}}
			}
			events <- Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}}
			events <- Event{Type: EventTurnEnd, Finish: FinishToolCalls}
			return nil
		}

		events <- Event{Type: EventUsage, Use: &Usage{InputTokens: 10, OutputTokens: 5}}
		events <- Event{Type: EventTurnEnd, Finish: FinishStop}
		return nil
	}), nil
}

// chunkText splits text into chunks of at most chunkSize bytes.
func chunkText(text string, chunkSize int) []string {
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > chunkSize {
		chunks = append(chunks, text[:chunkSize])
		text = text[chunkSize:]
	}
	return append(chunks, text)
}
