package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpClientTimeout is the default timeout for HTTP requests
const httpClientTimeout = 10 * time.Minute

// defaultHTTPClient is a shared HTTP client with reasonable timeouts
var defaultHTTPClient = &http.Client{
	Timeout: httpClientTimeout,
}

// OpenAIProvider implements Provider against an OpenAI-compatible
// chat-completions endpoint (OpenAI, Azure deployments, local servers).
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model string) *OpenAIProvider {
	baseURL = strings.TrimSuffix(baseURL, "/")
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  defaultHTTPClient,
	}
}

func (p *OpenAIProvider) Name() string {
	return fmt.Sprintf("OpenAI (%s)", p.model)
}

// Chat-completions request/response structures.
type oaiChatRequest struct {
	Model             string       `json:"model"`
	Messages          []oaiMessage `json:"messages"`
	Tools             []oaiTool    `json:"tools,omitempty"`
	ParallelToolCalls *bool        `json:"parallel_tool_calls,omitempty"`
	Temperature       *float64     `json:"temperature,omitempty"`
	Stream            bool         `json:"stream,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content,omitempty"`
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiTool struct {
	Type     string      `json:"type"`
	Function oaiFunction `json:"function"`
}

type oaiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type oaiToolCall struct {
	Index    int    `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function,omitempty"`
}

// oaiContentItem is one element of a tool message's content array:
// {"type":"text","text":...} or {"type":"image_url","image_url":{"url":...}}.
type oaiContentItem struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiChatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Model   string       `json:"model"`
	Choices []oaiChoice  `json:"choices"`
	Usage   *oaiUsage    `json:"usage,omitempty"`
	Error   *oaiAPIError `json:"error,omitempty"`
}

type oaiChoice struct {
	Index        int       `json:"index"`
	Delta        *oaiDelta `json:"delta,omitempty"`
	FinishReason string    `json:"finish_reason"`
}

type oaiDelta struct {
	Content   string        `json:"content,omitempty"`
	ToolCalls []oaiToolCall `json:"tool_calls,omitempty"`
}

type oaiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type oaiAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Stream opens a streaming completion. Parallel tool calls are always
// disabled when tools are declared: the orchestrator tracks exactly one
// pending call per turn.
func (p *OpenAIProvider) Stream(ctx context.Context, req Request) (Stream, error) {
	return newEventStream(ctx, func(ctx context.Context, events chan<- Event) error {
		messages := buildChatMessages(req.Messages)
		if len(messages) == 0 {
			return fmt.Errorf("no messages provided")
		}

		tools, err := buildChatTools(req.Tools)
		if err != nil {
			return err
		}

		chatReq := oaiChatRequest{
			Model:    chooseModel(req.Model, p.model),
			Messages: messages,
			Tools:    tools,
			Stream:   true,
		}
		if len(tools) > 0 {
			chatReq.ParallelToolCalls = boolPtr(false)
		}
		temp := float64(req.Temperature)
		chatReq.Temperature = &temp

		body, err := json.Marshal(chatReq)
		if err != nil {
			return err
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if p.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
		}

		resp, err := p.client.Do(httpReq)
		if err != nil {
			return fmt.Errorf("completion request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("completion API error (status %d): %s", resp.StatusCode, string(respBody))
		}

		scanner := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			// A chunk that fails to decode is skipped rather than failing the
			// stream; surface it under --debug so a misbehaving compatible
			// endpoint can be diagnosed.
			var chatResp oaiChatResponse
			if err := json.Unmarshal([]byte(data), &chatResp); err != nil {
				if req.Debug {
					debugSection("Undecodable Stream Chunk", data)
				}
				continue
			}

			if chatResp.Error != nil {
				return fmt.Errorf("completion API error: %s", chatResp.Error.Message)
			}

			if chatResp.Usage != nil {
				events <- Event{Type: EventUsage, Use: &Usage{
					InputTokens:  chatResp.Usage.PromptTokens,
					OutputTokens: chatResp.Usage.CompletionTokens,
				}}
			}

			// Chunks without choices are heartbeats and carry nothing.
			if len(chatResp.Choices) == 0 {
				continue
			}
			choice := chatResp.Choices[0]

			// A single chunk can carry content, a tool-call fragment, and a
			// finish reason all at once; report each to the consumer.
			if choice.Delta != nil {
				if choice.Delta.Content != "" {
					events <- Event{Type: EventTextDelta, Text: choice.Delta.Content}
				}
				for _, call := range choice.Delta.ToolCalls {
					events <- Event{Type: EventToolCallDelta, Delta: &ToolCallDelta{
						Index:     call.Index,
						ID:        call.ID,
						Name:      call.Function.Name,
						Arguments: call.Function.Arguments,
					}}
				}
			}
			if choice.FinishReason != "" {
				events <- Event{Type: EventTurnEnd, Finish: parseFinishReason(choice.FinishReason)}
			}
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("completion streaming error: %w", err)
		}
		return nil
	}), nil
}

func parseFinishReason(reason string) FinishReason {
	if reason == "tool_calls" {
		return FinishToolCalls
	}
	return FinishStop
}

func buildChatMessages(messages []Message) []oaiMessage {
	var result []oaiMessage
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
			text, toolCalls := splitParts(msg.Parts)
			if msg.Role == RoleAssistant && len(toolCalls) > 0 {
				out := oaiMessage{Role: "assistant", ToolCalls: toolCalls}
				if text != "" {
					out.Content = text
				}
				result = append(result, out)
				continue
			}
			if text == "" {
				continue
			}
			result = append(result, oaiMessage{Role: string(msg.Role), Content: text})
		case RoleTool:
			for _, part := range msg.Parts {
				if part.Type != PartToolResult || part.ToolResult == nil {
					continue
				}
				result = append(result, oaiMessage{
					Role:       "tool",
					Content:    buildToolContent(part.ToolResult.Content),
					ToolCallID: part.ToolResult.ID,
					Name:       part.ToolResult.Name,
				})
			}
		}
	}
	return result
}

// buildToolContent serializes tool output as the wire-level content item
// list: text items verbatim, images as base64 data URIs.
func buildToolContent(parts []ToolContentPart) []oaiContentItem {
	items := make([]oaiContentItem, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case ToolContentPartImage:
			if part.ImageData == nil {
				continue
			}
			items = append(items, oaiContentItem{
				Type: "image_url",
				ImageURL: &oaiImageURL{
					URL: fmt.Sprintf("data:%s;base64,%s", part.ImageData.MediaType, part.ImageData.Base64),
				},
			})
		default:
			items = append(items, oaiContentItem{Type: "text", Text: part.Text})
		}
	}
	return items
}

func splitParts(parts []Part) (string, []oaiToolCall) {
	var textParts []string
	var toolCalls []oaiToolCall
	for _, part := range parts {
		switch part.Type {
		case PartText:
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		case PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			call := oaiToolCall{ID: part.ToolCall.ID, Type: "function"}
			call.Function.Name = part.ToolCall.Name
			call.Function.Arguments = string(part.ToolCall.Arguments)
			toolCalls = append(toolCalls, call)
		}
	}
	return strings.Join(textParts, ""), toolCalls
}

func buildChatTools(specs []ToolSpec) ([]oaiTool, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	tools := make([]oaiTool, 0, len(specs))
	for _, spec := range specs {
		schema, err := json.Marshal(spec.Schema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema %s: %w", spec.Name, err)
		}
		tools = append(tools, oaiTool{
			Type: "function",
			Function: oaiFunction{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  schema,
			},
		})
	}
	return tools, nil
}

func chooseModel(reqModel, defaultModel string) string {
	if reqModel != "" {
		return reqModel
	}
	return defaultModel
}

func boolPtr(v bool) *bool {
	return &v
}
