package taskclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/taskhopper/hopper/pkg/log"
	"github.com/taskhopper/hopper/pkg/metrics"
)

// MCPClient adapts Service onto a Model Context Protocol session: each
// operation in the Service interface is one CallTool invocation against the
// task service's tool surface (list_tasks, get_unassigned_in_queue,
// update_task). The underlying transport is inherently asynchronous but
// this adapter presents a blocking surface, as the reconciler is
// synchronous and must not manage coroutines.
type MCPClient struct {
	cli     *client.Client
	timeout time.Duration

	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
}

// NewMCPClient connects to the task service over a streamable-HTTP MCP
// transport and performs the protocol handshake.
func NewMCPClient(ctx context.Context, endpoint string, timeout time.Duration, maxRetries int) (*MCPClient, error) {
	cli, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("create mcp client for %s: %w", endpoint, err)
	}
	if err := cli.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mcp transport: %w", err)
	}

	initCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err = cli.Initialize(initCtx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "hopper",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("initialize mcp session: %w", err)
	}

	return &MCPClient{
		cli:        cli,
		timeout:    timeout,
		maxRetries: maxRetries,
		backoff:    200 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}, nil
}

// Close tears down the MCP session.
func (c *MCPClient) Close() error {
	return c.cli.Close()
}

func (c *MCPClient) callTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	timer := metrics.NewTimer()
	outcome := "success"
	defer func() {
		timer.ObserveDurationVec(metrics.TaskServiceCallDuration, name)
		metrics.TaskServiceCallsTotal.WithLabelValues(name, outcome).Inc()
	}()

	var lastErr error
	delay := c.backoff
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		result, err := c.cli.CallTool(callCtx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      name,
				Arguments: args,
			},
		})
		cancel()
		if err == nil {
			if result.IsError {
				outcome = "api_error"
			}
			return result, nil
		}
		lastErr = err
		if !isTransportError(err) {
			// API errors (the tool call reached the service and it
			// rejected it) do not retry.
			outcome = "api_error"
			return nil, err
		}
		outcome = "transport_error"
		if attempt < c.maxRetries {
			log.WithComponent("taskclient").Warn().
				Str("tool", name).
				Int("attempt", attempt+1).
				Err(err).
				Msg("task service call failed, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			delay *= 2
			if delay > c.maxBackoff {
				delay = c.maxBackoff
			}
		}
	}
	return nil, fmt.Errorf("task service call %q failed after %d attempts: %w", name, c.maxRetries+1, lastErr)
}

// isTransportError classifies connection/protocol failures as retryable,
// as distinct from the service explicitly rejecting a well-formed call.
func isTransportError(err error) bool {
	// The mcp-go client surfaces transport failures (dial, stream reset,
	// context deadline) as plain errors indistinguishable by type from
	// protocol-level tool errors in older client versions, so hopper
	// treats anything that isn't a decoded tool-level IsError result as
	// transport/connection class and eligible for retry.
	return err != nil
}

func firstTextContent(result *mcp.CallToolResult) (string, bool) {
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text, true
		}
	}
	return "", false
}

func (c *MCPClient) callForTasks(ctx context.Context, tool string, args map[string]any) ([]Task, error) {
	result, err := c.callTool(ctx, tool, args)
	if err != nil {
		log.WithComponent("taskclient").Warn().Str("tool", tool).Err(err).Msg("task service call failed, returning empty result")
		return nil, nil
	}
	if result.IsError {
		text, _ := firstTextContent(result)
		return nil, fmt.Errorf("task service rejected %s: %s", tool, text)
	}
	text, ok := firstTextContent(result)
	if !ok {
		return nil, nil
	}
	tasks, err := decodeTasksResponse([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", tool, err)
	}
	return tasks, nil
}

// ListIdle returns up to limit tasks assigned to agent with status "idle".
func (c *MCPClient) ListIdle(ctx context.Context, agent string, limit int) ([]Task, error) {
	return c.callForTasks(ctx, "list_tasks", map[string]any{
		"assigned_to": agent,
		"status":      "idle",
		"limit":       limit,
	})
}

// GetUnassignedInQueue returns up to limit unassigned tasks in queue.
func (c *MCPClient) GetUnassignedInQueue(ctx context.Context, queue string, limit int) ([]Task, error) {
	return c.callForTasks(ctx, "get_unassigned_in_queue", map[string]any{
		"queue_name": queue,
		"limit":      limit,
	})
}

// Assign sets assigned_to on a task.
func (c *MCPClient) Assign(ctx context.Context, taskID, agent string) (bool, error) {
	result, err := c.callTool(ctx, "update_task", map[string]any{
		"id":          taskID,
		"assigned_to": agent,
	})
	if err != nil {
		log.WithComponent("taskclient").Warn().Str("task_id", taskID).Err(err).Msg("assign call failed")
		return false, nil
	}
	if result.IsError {
		return false, nil
	}
	return decodeSuccess(result), nil
}

// Claim transitions a task to "working". Idempotent on the service side.
func (c *MCPClient) Claim(ctx context.Context, taskID, agent string) error {
	result, err := c.callTool(ctx, "update_task", map[string]any{
		"id":          taskID,
		"status":      "working",
		"assigned_to": agent,
	})
	if err != nil {
		return err
	}
	if result.IsError {
		text, _ := firstTextContent(result)
		return fmt.Errorf("claim rejected: %s", text)
	}
	return nil
}

// Requeue transitions a task back to "idle".
func (c *MCPClient) Requeue(ctx context.Context, taskID, reason string) error {
	result, err := c.callTool(ctx, "update_task", map[string]any{
		"id":     taskID,
		"status": "idle",
		"reason": reason,
	})
	if err != nil {
		return err
	}
	if result.IsError {
		text, _ := firstTextContent(result)
		return fmt.Errorf("requeue rejected: %s", text)
	}
	return nil
}

// Complete marks a task terminal. Used by the wrapper, not the reconciler,
// but kept on Service so a single client implementation serves both.
func (c *MCPClient) Complete(ctx context.Context, taskID string, success bool) error {
	status := "complete"
	if !success {
		status = "failed"
	}
	result, err := c.callTool(ctx, "update_task", map[string]any{
		"id":     taskID,
		"status": status,
	})
	if err != nil {
		return err
	}
	if result.IsError {
		text, _ := firstTextContent(result)
		return fmt.Errorf("complete rejected: %s", text)
	}
	return nil
}

func decodeSuccess(result *mcp.CallToolResult) bool {
	text, ok := firstTextContent(result)
	if !ok {
		return true
	}
	var payload struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return true
	}
	if payload.Success != nil {
		return *payload.Success
	}
	return true
}
