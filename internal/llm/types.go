// ABOUTME: Message and content-block types for the model provider API.
// ABOUTME: One ContentBlock struct covers text, tool_use, and tool_result segments.

package llm

import "encoding/json"

// Message roles. The Messages API only accepts user and assistant turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Content block kinds.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// Message is one turn in a conversation history.
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is one segment of a message or model response. Which fields
// are set depends on Type:
//
//	text        - Text
//	tool_use    - ID, Name, Input
//	tool_result - ToolUseID, Content
type ContentBlock struct {
	Type string `json:"type"`

	// For text blocks
	Text string `json:"text,omitempty"`

	// For tool_use blocks
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// For tool_result blocks
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// UserText builds a single-turn user message from plain text.
func UserText(text string) Message {
	return Message{Role: RoleUser, Content: []ContentBlock{TextBlock(text)}}
}

// Tool is a tool declaration in the provider's schema format.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema"`
}
