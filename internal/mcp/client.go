// ABOUTME: MCP client over the Streamable HTTP transport.
// ABOUTME: Owns the session lifecycle - connect, tool discovery, tool calls, disconnect.

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Connection errors
var (
	ErrConnectFailed = errors.New("failed to connect")
	ErrNotConnected  = errors.New("not connected")
)

// ToolCallError reports a single failed tool invocation. It is recoverable:
// the conversation driver absorbs it into the reply text instead of aborting
// the turn.
type ToolCallError struct {
	Tool string
	Err  error
}

func (e *ToolCallError) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

func (e *ToolCallError) Unwrap() error { return e.Err }

// Client maintains one live connection to an MCP tool server. It is safe for
// concurrent use, though callers that share a connection across reply
// computations must serialize CallTool sequences themselves (the session
// registry does this with a per-entry lock held across each lease).
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	clientInfo Info
	backoff    backoffPolicy

	mu        sync.Mutex
	connected bool
	sessionID string
	tools     []Tool
	nextID    int64

	streamCancel context.CancelFunc
	streamDone   chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the HTTP client used for all transport calls.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the tool server at endpoint, authenticating
// every request with the given bearer token.
func NewClient(endpoint, token string, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.With("component", "mcp-client"),
		clientInfo: Info{Name: "chatgate", Version: "1.0.0"},
		backoff:    defaultBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the session: initialize handshake, initialized
// notification, tool discovery, and the background event stream. Calling
// Connect while already connected is a no-op returning the cached tool list.
// On any failure partial state is torn down before the error is returned.
func (c *Client) Connect(ctx context.Context) ([]Tool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return cloneTools(c.tools), nil
	}

	if err := c.connectLocked(ctx); err != nil {
		c.teardownLocked()
		return nil, fmt.Errorf("%w: %v", ErrConnectFailed, err)
	}

	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	c.logger.Info("connected to tool server", "session_id", c.sessionID, "tools", names)

	return cloneTools(c.tools), nil
}

// connectLocked performs the handshake. Must be called with mu held.
func (c *Client) connectLocked(ctx context.Context) error {
	initParams := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      c.clientInfo,
	}

	var initRes initializeResult
	header, err := c.rpcLocked(ctx, methodInitialize, initParams, &initRes)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	c.sessionID = header.Get(sessionHeader)
	c.logger.Debug("initialize complete",
		"protocol_version", initRes.ProtocolVersion,
		"server", initRes.ServerInfo.Name,
		"session_id", c.sessionID,
	)

	if err := c.notifyLocked(ctx, methodInitialized); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}

	var listRes ListToolsResult
	if _, err := c.rpcLocked(ctx, methodToolsList, struct{}{}, &listRes); err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}
	c.tools = listRes.Tools
	c.connected = true

	// The standalone GET stream carries server notifications (tool list
	// changes); it is maintained with backoff until Disconnect.
	streamCtx, cancel := context.WithCancel(context.Background())
	c.streamCancel = cancel
	c.streamDone = make(chan struct{})
	go c.maintainStream(streamCtx)

	return nil
}

// Disconnect closes the session. Local state always ends up disconnected -
// cached tools and the session token are cleared even when the remote close
// fails, in which case the failure is still returned.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	sessionID := c.sessionID
	wasConnected := c.connected
	c.teardownLocked()
	c.mu.Unlock()

	if !wasConnected {
		return nil
	}

	if err := c.deleteSession(ctx, sessionID); err != nil {
		c.logger.Warn("remote session close failed", "error", err)
		return err
	}
	c.logger.Info("disconnected from tool server", "session_id", sessionID)
	return nil
}

// teardownLocked resets local connection state. Must be called with mu held.
func (c *Client) teardownLocked() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
	c.connected = false
	c.sessionID = ""
	c.tools = nil
}

// deleteSession issues the HTTP DELETE that ends the server-side session.
func (c *Client) deleteSession(ctx context.Context, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req, sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusMethodNotAllowed {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// CallTool invokes a named tool with the given JSON arguments. The client
// must be connected. Protocol errors and isError results are both reported
// as *ToolCallError.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage) (CallToolResult, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return CallToolResult{}, ErrNotConnected
	}

	params := CallToolParams{Name: name, Arguments: arguments}
	var result CallToolResult
	_, err := c.rpcLocked(ctx, methodToolsCall, params, &result)
	c.mu.Unlock()

	if err != nil {
		return CallToolResult{}, &ToolCallError{Tool: name, Err: err}
	}
	if result.IsError {
		return CallToolResult{}, &ToolCallError{Tool: name, Err: errors.New(result.Joined())}
	}

	c.logger.Debug("tool call complete", "tool", name, "segments", len(result.Content))
	return result, nil
}

// Tools returns a copy of the cached tool descriptors from the last
// successful discovery. Empty when disconnected.
func (c *Client) Tools() []Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneTools(c.tools)
}

// Connected reports whether the session is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// SessionID returns the session identifier negotiated on connect, or ""
// when disconnected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// rpcLocked performs one JSON-RPC request/response round trip over POST and
// decodes the result into out. Must be called with mu held (it assigns
// request ids and reads the session id).
func (c *Client) rpcLocked(ctx context.Context, method string, params any, out any) (http.Header, error) {
	c.nextID++
	id := json.RawMessage(strconv.FormatInt(c.nextID, 10))

	paramsBs, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}

	body, err := json.Marshal(JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsBs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, c.sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, data)
	}

	var rpcResp JSONRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	if out != nil {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return nil, fmt.Errorf("%s: decoding result: %w", method, err)
		}
	}
	return resp.Header, nil
}

// notifyLocked sends a JSON-RPC notification (no id, no result expected).
// Must be called with mu held.
func (c *Client) notifyLocked(ctx context.Context, method string) error {
	body, err := json.Marshal(JSONRPCRequest{JSONRPC: "2.0", Method: method})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	c.setHeaders(req, c.sessionID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}
	return nil
}

// setHeaders applies the bearer credential, session id, and content
// negotiation headers common to every transport request.
func (c *Client) setHeaders(req *http.Request, sessionID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
}

func cloneTools(tools []Tool) []Tool {
	if tools == nil {
		return nil
	}
	out := make([]Tool, len(tools))
	copy(out, tools)
	return out
}
