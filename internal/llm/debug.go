package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// DebugRequest prints the outgoing completion request for one round.
func DebugRequest(turn int, req Request) {
	var b strings.Builder
	if req.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", req.Model)
	}
	fmt.Fprintf(&b, "temperature: %.2f\n", req.Temperature)
	if len(req.Tools) > 0 {
		b.WriteString("tools:\n")
		for _, tool := range req.Tools {
			fmt.Fprintf(&b, "- name: %s\n", tool.Name)
			if tool.Description != "" {
				fmt.Fprintf(&b, "  description: %s\n", tool.Description)
			}
		}
	}
	if len(req.Messages) > 0 {
		b.WriteString("messages:\n")
		for i, msg := range req.Messages {
			fmt.Fprintf(&b, "[%d] role=%s\n", i+1, msg.Role)
			for _, part := range msg.Parts {
				switch part.Type {
				case PartText:
					b.WriteString("text:\n")
					b.WriteString(part.Text)
					b.WriteString("\n")
				case PartToolCall:
					if part.ToolCall != nil {
						fmt.Fprintf(&b, "tool_call name=%s id=%s\n", part.ToolCall.Name, part.ToolCall.ID)
						b.WriteString("args:\n")
						b.WriteString(string(part.ToolCall.Arguments))
						b.WriteString("\n")
					}
				case PartToolResult:
					if part.ToolResult != nil {
						fmt.Fprintf(&b, "tool_result name=%s id=%s parts=%d\n",
							part.ToolResult.Name, part.ToolResult.ID, len(part.ToolResult.Content))
					}
				}
			}
			b.WriteString("---\n")
		}
	}
	debugSection(fmt.Sprintf("Request (round %d)", turn+1), strings.TrimRight(b.String(), "\n"))
}

// DebugToolCall prints a finalized tool call with readable formatting.
func DebugToolCall(call ToolCall) {
	args := formatJSON(call.Arguments)
	body := fmt.Sprintf("name: %s\nid: %s\nargs:\n%s", call.Name, call.ID, args)
	debugSection("Tool Call", body)
}

// DebugToolResult prints the textual portion of a tool result.
func DebugToolResult(id, name string, content []ToolContentPart) {
	var b strings.Builder
	for _, part := range content {
		switch part.Type {
		case ToolContentPartText:
			b.WriteString(part.Text)
			b.WriteString("\n")
		case ToolContentPartImage:
			if part.ImageData != nil {
				fmt.Fprintf(&b, "[image %s len=%d]\n", part.ImageData.MediaType, len(part.ImageData.Base64))
			}
		}
	}
	result := strings.TrimRight(b.String(), "\n")
	if result == "" {
		result = "(empty)"
	}
	body := fmt.Sprintf("name: %s\nid: %s\nresult:\n%s", name, id, result)
	debugSection("Tool Result", body)
}

func debugSection(title, body string) {
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "=== DEBUG: %s ===\n", title)
	if body != "" {
		fmt.Fprintln(os.Stderr, body)
	}
	fmt.Fprintf(os.Stderr, "=== DEBUG: END %s ===\n", title)
	fmt.Fprintln(os.Stderr)
}

func formatJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(empty)"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return string(raw)
	}
	return out.String()
}
