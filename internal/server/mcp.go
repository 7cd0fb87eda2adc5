package server

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jeanpaul/recall/internal/tools"
)

const serverName = "recall"

// Catalog is the tool surface served over MCP and HTTP.
type Catalog interface {
	tools.Invoker
	Definitions() []tools.Definition
}

// NewMCPServer registers every catalog tool with its JSON schema. Tool
// failures come back as error results carrying the {kind, message} body,
// never as protocol errors.
func NewMCPServer(c Catalog, version string) *server.MCPServer {
	s := server.NewMCPServer(serverName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	for _, def := range c.Definitions() {
		tool := mcp.NewToolWithRawSchema(def.Name, def.Description, def.SchemaJSON())
		s.AddTool(tool, toolHandler(c, def.Name))
	}
	return s
}

func toolHandler(c Catalog, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := json.RawMessage("{}")
		if raw := req.GetRawArguments(); raw != nil {
			data, err := json.Marshal(raw)
			if err != nil {
				return mcp.NewToolResultError("arguments are not JSON: " + err.Error()), nil
			}
			args = data
		}
		sessionID := ""
		if cs := server.ClientSessionFromContext(ctx); cs != nil {
			sessionID = cs.SessionID()
		}

		resp := c.Invoke(ctx, tools.Request{Tool: name, Arguments: args, SessionID: sessionID})
		body, err := json.Marshal(resp)
		if err != nil {
			return nil, err
		}
		result := mcp.NewToolResultText(string(body))
		result.IsError = !resp.OK
		return result, nil
	}
}

// ServeStdio runs the MCP server over in/out until ctx is done or in
// closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s).Listen(ctx, in, out)
}
