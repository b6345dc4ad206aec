package llm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"
)

func TestMockProvider_StreamTextResponse(t *testing.T) {
	p := NewMockProvider("test")
	p.AddTextResponse("Hello, world!")

	stream, err := p.Stream(context.Background(), Request{
		Messages: []Message{UserText("Hi")},
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var text string
	var gotUsage, gotTurnEnd bool
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		switch event.Type {
		case EventTextDelta:
			text += event.Text
		case EventUsage:
			gotUsage = true
		case EventTurnEnd:
			gotTurnEnd = true
			if event.Finish != FinishStop {
				t.Errorf("Finish = %q, want %q", event.Finish, FinishStop)
			}
		}
	}

	if text != "Hello, world!" {
		t.Errorf("got text %q, want %q", text, "Hello, world!")
	}
	if !gotUsage {
		t.Error("expected usage event")
	}
	if !gotTurnEnd {
		t.Error("expected turn end event")
	}
	if len(p.Requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(p.Requests))
	}
}

func TestMockProvider_StreamToolCallDeltas(t *testing.T) {
	p := NewMockProvider("test")
	p.AddToolCallFragments("call_123", "get_table_schema", `{"tab`, `le_name": "sal`, `es"}`)

	stream, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var pending pendingToolCall
	var finish FinishReason
	for {
		event, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Recv() error = %v", err)
		}
		switch event.Type {
		case EventToolCallDelta:
			if err := pending.feed(*event.Delta); err != nil {
				t.Fatalf("feed() error = %v", err)
			}
		case EventTurnEnd:
			finish = event.Finish
		}
	}

	if finish != FinishToolCalls {
		t.Fatalf("Finish = %q, want %q", finish, FinishToolCalls)
	}
	call, err := pending.finalize()
	if err != nil {
		t.Fatalf("finalize() error = %v", err)
	}
	if call.ID != "call_123" || call.Name != "get_table_schema" {
		t.Errorf("call = %+v", call)
	}
	if string(call.Arguments) != `{"table_name": "sales"}` {
		t.Errorf("Arguments = %q", call.Arguments)
	}
}

func TestMockProvider_NoMoreTurns(t *testing.T) {
	p := NewMockProvider("test")
	p.AddTextResponse("Hello")

	stream, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
	stream.Close()

	if _, err := p.Stream(context.Background(), Request{}); err == nil {
		t.Error("expected error when no more turns configured")
	}
}

func TestMockProvider_Error(t *testing.T) {
	testErr := errors.New("test error")
	p := NewMockProvider("test")
	p.AddError(testErr)

	stream, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	var gotError error
	for {
		_, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			gotError = err
			break
		}
	}

	if !errors.Is(gotError, testErr) {
		t.Errorf("got error %v, want %v", gotError, testErr)
	}
}

func TestMockProvider_CancelDuringDelay(t *testing.T) {
	p := NewMockProvider("test")
	p.AddTurn(MockTurn{Text: "Delayed response", Delay: 1 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := p.Stream(ctx, Request{})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	cancel()

	if _, err := stream.Recv(); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMockProvider_Reset(t *testing.T) {
	p := NewMockProvider("test")
	p.AddTextResponse("Hello")

	stream, _ := p.Stream(context.Background(), Request{})
	for {
		if _, err := stream.Recv(); err != nil {
			break
		}
	}
	stream.Close()

	p.Reset()

	if len(p.Requests) != 0 {
		t.Errorf("expected 0 requests after reset, got %d", len(p.Requests))
	}
	if p.CurrentTurn() != 0 {
		t.Errorf("expected turn index 0 after reset, got %d", p.CurrentTurn())
	}

	stream2, err := p.Stream(context.Background(), Request{})
	if err != nil {
		t.Fatalf("Stream() after reset error = %v", err)
	}
	for {
		if _, err := stream2.Recv(); err != nil {
			break
		}
	}
	stream2.Close()
}

func TestChunkText(t *testing.T) {
	tests := []struct {
		text      string
		chunkSize int
		wantLen   int
	}{
		{"", 10, 0},
		{"hello", 10, 1},
		{"hello world", 10, 2},
		{"hello world this is a longer text", 10, 4},
	}

	for _, tt := range tests {
		chunks := chunkText(tt.text, tt.chunkSize)
		if len(chunks) != tt.wantLen {
			t.Errorf("chunkText(%q, %d) = %d chunks, want %d", tt.text, tt.chunkSize, len(chunks), tt.wantLen)
		}

		var reassembled string
		for _, c := range chunks {
			reassembled += c
		}
		if reassembled != tt.text {
			t.Errorf("reassembled text = %q, want %q", reassembled, tt.text)
		}
	}
}
