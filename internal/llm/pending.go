package llm

import (
	"encoding/json"
	"strings"
)

// pendingToolCall assembles a single tool call from incremental deltas.
// The call id and name arrive on the first delta; argument fragments may
// arrive on any delta and concatenate to the full JSON argument object.
type pendingToolCall struct {
	id        string
	name      string
	index     int
	fragments []string
	started   bool
}

// feed merges one delta. A delta carrying a different call id or index while
// a call is already pending is a protocol violation: the request is issued
// with parallel tool calls disabled, so only one call may be in flight.
func (p *pendingToolCall) feed(delta ToolCallDelta) error {
	if p.started {
		if delta.ID != "" && delta.ID != p.id {
			return &ProtocolViolationError{PendingID: p.id, GotID: delta.ID}
		}
		if delta.Index != p.index {
			return &ProtocolViolationError{PendingID: p.id, GotID: delta.ID}
		}
	} else {
		p.started = true
		p.index = delta.Index
	}
	if delta.ID != "" {
		p.id = delta.ID
	}
	if delta.Name != "" {
		p.name = delta.Name
	}
	if delta.Arguments != "" {
		p.fragments = append(p.fragments, delta.Arguments)
	}
	return nil
}

// active reports whether any delta has been received.
func (p *pendingToolCall) active() bool {
	return p.started
}

// finalize concatenates the fragments and validates the result as a JSON
// object. An empty concatenation is a zero-argument call and parses to {}.
func (p *pendingToolCall) finalize() (ToolCall, error) {
	raw := strings.Join(p.fragments, "")
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return ToolCall{}, &MalformedToolCallError{Name: p.name, Raw: raw, Err: err}
	}
	return ToolCall{
		ID:        p.id,
		Name:      p.name,
		Arguments: json.RawMessage(raw),
	}, nil
}
