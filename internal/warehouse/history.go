package warehouse

import (
	"fmt"
	"strings"
	"sync"
)

const (
	historyLimit         = 200
	historyOutputPreview = 200
)

// Interaction is one recorded tool invocation.
type Interaction struct {
	Kind   string
	Input  string
	Output string
}

// History records tool interactions for one server instance. It is bounded:
// once the limit is reached the oldest entries are dropped.
type History struct {
	mu      sync.Mutex
	entries []Interaction
}

func NewHistory() *History {
	return &History{}
}

// Record appends an interaction, evicting the oldest entry past the limit.
func (h *History) Record(kind, input, output string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, Interaction{Kind: kind, Input: input, Output: output})
	if len(h.entries) > historyLimit {
		h.entries = h.entries[len(h.entries)-historyLimit:]
	}
}

// Len returns the number of recorded interactions.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Render formats the history as markdown, truncating each output to a short
// preview.
func (h *History) Render() string {
	h.mu.Lock()
	entries := append([]Interaction(nil), h.entries...)
	h.mu.Unlock()

	if len(entries) == 0 {
		return "No interactions found in this session."
	}

	var b strings.Builder
	b.WriteString("## Interaction History\n\n")
	for i, entry := range entries {
		fmt.Fprintf(&b, "### %d. %s\n", i+1, entry.Kind)
		fmt.Fprintf(&b, "**Input:** `%s`\n", entry.Input)

		output := entry.Output
		if len(output) > historyOutputPreview {
			output = output[:historyOutputPreview] + "..."
		}
		fmt.Fprintf(&b, "**Output:** %s\n\n", output)
	}
	return b.String()
}
