// ABOUTME: Conversation driver that runs the tool-use loop for one message.
// ABOUTME: Bridges the model provider and a session's tool connection.

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/helmline/chatgate/internal/llm"
	"github.com/helmline/chatgate/internal/mcp"
)

// ModelClient is the completion surface the driver needs from the provider.
type ModelClient interface {
	Complete(ctx context.Context, messages []llm.Message, tools []llm.Tool, userID string) ([]llm.ContentBlock, error)
}

// ToolConnection is the tool surface the driver needs from a session's
// MCP connection.
type ToolConnection interface {
	Tools() []mcp.Tool
	CallTool(ctx context.Context, name string, arguments json.RawMessage) (mcp.CallToolResult, error)
}

// Driver turns one user message into a reply, dispatching any tool calls
// the model requests along the way. Each call is an independent turn; the
// driver keeps no conversation history between calls.
type Driver struct {
	model  ModelClient
	tools  ToolConnection
	logger *slog.Logger
}

// NewDriver creates a conversation driver bound to one tool connection.
func NewDriver(model ModelClient, tools ToolConnection, logger *slog.Logger) *Driver {
	return &Driver{
		model:  model,
		tools:  tools,
		logger: logger.With("component", "chat"),
	}
}

// ProcessMessage sends text to the model with the session's tools attached
// and resolves the response to plain text. Tool use is handled inline: each
// tool_use block is dispatched in order, its result is fed back to the model
// in a follow-up call, and the follow-up's text joins the reply. A failed
// tool call becomes an error line in the reply rather than failing the turn.
func (d *Driver) ProcessMessage(ctx context.Context, text, userTag string) (string, error) {
	tools := providerTools(d.tools.Tools())
	history := []llm.Message{llm.UserText(text)}

	blocks, err := d.model.Complete(ctx, history, tools, userTag)
	if err != nil {
		return "", fmt.Errorf("completing message: %w", err)
	}

	var reply []string
	for _, block := range blocks {
		switch block.Type {
		case llm.BlockText:
			reply = append(reply, block.Text)

		case llm.BlockToolUse:
			d.logger.Debug("dispatching tool", "tool", block.Name)
			result, err := d.tools.CallTool(ctx, block.Name, block.Input)
			if err != nil {
				// A broken tool should not sink the whole turn; surface it
				// in the reply and keep going.
				d.logger.Warn("tool call failed", "tool", block.Name, "error", err)
				reply = append(reply, toolErrorLine(block.Name, err))
				continue
			}

			// Each tool exchange extends the same turn history, so a later
			// follow-up sees every earlier tool_use/tool_result pair.
			history = append(history,
				llm.Message{Role: llm.RoleAssistant, Content: []llm.ContentBlock{block}},
				llm.Message{Role: llm.RoleUser, Content: []llm.ContentBlock{{
					Type:      llm.BlockToolResult,
					ToolUseID: block.ID,
					Content:   result.Joined(),
				}}},
			)

			// Follow-up runs without tools so the model summarizes the
			// result instead of chaining further calls.
			followBlocks, err := d.model.Complete(ctx, history, nil, userTag)
			if err != nil {
				return "", fmt.Errorf("completing tool follow-up: %w", err)
			}
			for _, fb := range followBlocks {
				if fb.Type == llm.BlockText {
					reply = append(reply, fb.Text)
				}
			}

		default:
			d.logger.Warn("unsupported content block", "type", block.Type)
		}
	}

	return strings.Join(reply, "\n"), nil
}

// toolErrorLine formats a failed tool call for the reply text.
func toolErrorLine(name string, err error) string {
	var tcErr *mcp.ToolCallError
	if errors.As(err, &tcErr) {
		err = tcErr.Err
	}
	return fmt.Sprintf("Error calling tool %s: %v", name, err)
}

// providerTools converts MCP tool declarations to the provider schema.
func providerTools(tools []mcp.Tool) []llm.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]llm.Tool, len(tools))
	for i, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out[i] = llm.Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		}
	}
	return out
}
