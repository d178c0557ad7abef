// Package mcpx wraps the mcp-go stdio client with the minimal surface the
// tool-agent example needs: connect, list tools, call one.
package mcpx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// Tool describes one tool exposed by a connected server.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// Client is a connection to one stdio MCP server.
type Client struct {
	mc *client.Client
}

// Dial spawns the server process and completes the initialize handshake.
func Dial(ctx context.Context, command string, args ...string) (*Client, error) {
	mc, err := client.NewStdioMCPClient(command, nil, args...)
	if err != nil {
		return nil, fmt.Errorf("spawn mcp server %s: %w", command, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "stepflow", Version: "0.1.0"}

	if _, err := mc.Initialize(ctx, initReq); err != nil {
		mc.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", command, err)
	}

	return &Client{mc: mc}, nil
}

// Tools lists the tools the server advertises.
func (c *Client) Tools(ctx context.Context) ([]Tool, error) {
	resp, err := c.mc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	tools := make([]Tool, 0, len(resp.Tools))
	for _, t := range resp.Tools {
		schema, err := json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", t.Name, err)
		}
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			Schema:      schema,
		})
	}
	return tools, nil
}

// Call invokes one tool and flattens its text content into a string.
func (c *Client) Call(ctx context.Context, name string, args map[string]any) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := c.mc.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", name, err)
	}

	var sb strings.Builder
	for _, content := range resp.Content {
		if text, ok := content.(mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}

	if resp.IsError {
		return "", fmt.Errorf("tool %s reported an error: %s", name, sb.String())
	}
	return sb.String(), nil
}

func (c *Client) Close() error {
	return c.mc.Close()
}

// Describe renders the tool list for a model prompt.
func Describe(tools []Tool) string {
	var sb strings.Builder
	for _, tool := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", tool.Name, tool.Description)
		if len(tool.Schema) > 0 {
			fmt.Fprintf(&sb, "  input schema: %s\n", tool.Schema)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}
