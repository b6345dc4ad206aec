package llm

import "fmt"

// MalformedToolCallError reports that the accumulated argument fragments of a
// tool call do not form a valid JSON object. Raw retains the concatenated
// fragment text for diagnostics.
type MalformedToolCallError struct {
	Name string
	Raw  string
	Err  error
}

func (e *MalformedToolCallError) Error() string {
	return fmt.Sprintf("malformed tool call %q: %v (raw arguments: %q)", e.Name, e.Err, e.Raw)
}

func (e *MalformedToolCallError) Unwrap() error {
	return e.Err
}

// ProtocolViolationError reports that the provider started a second tool call
// before the pending one resolved. The request disables parallel tool calls,
// so this should never happen with a conforming provider.
type ProtocolViolationError struct {
	PendingID string
	GotID     string
}

func (e *ProtocolViolationError) Error() string {
	return fmt.Sprintf("provider started tool call %q while call %q is still pending", e.GotID, e.PendingID)
}
