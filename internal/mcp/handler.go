package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/keypanel/keypanel/internal/model"
	"github.com/keypanel/keypanel/internal/service"
)

// --------------------------------------------------------------------------
// Parameter extraction helpers
// --------------------------------------------------------------------------

// requireString extracts a required, non-empty string argument.
func requireString(request mcp.CallToolRequest, key string) (string, error) {
	val, err := request.RequireString(key)
	if err != nil || val == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return val, nil
}

// optionalString extracts an optional string argument from the tool request.
func optionalString(request mcp.CallToolRequest, key string) string {
	return request.GetString(key, "")
}

// daysArg reads a duration argument sent as a number or a numeric string.
// An absent argument is reported as unset.
func daysArg(request mcp.CallToolRequest, key string) model.Days {
	args := request.GetArguments()
	if args == nil {
		return model.Days{}
	}
	switch v := args[key].(type) {
	case float64:
		return model.DaysOf(int(v))
	case int:
		return model.DaysOf(v)
	case string:
		return model.ParseDays(v)
	default:
		return model.Days{}
	}
}

// resolveApp looks up the app named by the "app" argument, by id or name.
func (s *MCPServer) resolveApp(ctx context.Context, request mcp.CallToolRequest) (*model.App, *mcp.CallToolResult) {
	ref, err := requireString(request, "app")
	if err != nil {
		res, _ := toolError("%v", err)
		return nil, res
	}
	app, err := s.services.Apps.Resolve(ctx, ref)
	if err != nil {
		res, _ := s.serviceError(ctx, request.Params.Name, err)
		return nil, res
	}
	return app, nil
}

// --------------------------------------------------------------------------
// Response builders
// --------------------------------------------------------------------------

// successJSON marshals data to JSON and returns it as a tool result.
func successJSON(data interface{}) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// toolError returns a tool-level error result. Errors returned this way are
// visible to the model so it can self-correct; they do NOT terminate the MCP
// session.
func toolError(format string, args ...interface{}) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(fmt.Sprintf(format, args...)), nil
}

// serviceError reports input errors verbatim. Anything else is logged and
// hidden from the client.
func (s *MCPServer) serviceError(ctx context.Context, tool string, err error) (*mcp.CallToolResult, error) {
	if service.IsInputError(err) {
		return toolError("%s", err.Error())
	}
	s.logger.ErrorContext(ctx, "mcp tool failed", "tool", tool, "error", err)
	return toolError("Internal error")
}
