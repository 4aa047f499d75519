package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerTools registers all keypanel MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("keypanel_list_apps",
			mcp.WithDescription(
				"List all registered applications with their id, name, owner id, "+
					"creation time, total key count and active key count. Secret keys "+
					"are never returned. Use this first to find the app to work on.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListApps,
	)

	srv.AddTool(
		mcp.NewTool("keypanel_list_keys",
			mcp.WithDescription(
				"List the license keys of one application, each with its expiry, "+
					"ban flag, note, bound hardware id, derived status (active, expired "+
					"or banned) and remaining time.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("app",
				mcp.Required(),
				mcp.Description("Application id or name"),
			),
		),
		s.handleListKeys,
	)

	srv.AddTool(
		mcp.NewTool("keypanel_key_stats",
			mcp.WithDescription(
				"Aggregate counts for one application's keys: total, active, banned, "+
					"expired, used and hardware-locked.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("app",
				mcp.Required(),
				mcp.Description("Application id or name"),
			),
		),
		s.handleKeyStats,
	)

	// ----- Mutation tools -----

	srv.AddTool(
		mcp.NewTool("keypanel_generate_key",
			mcp.WithDescription(
				"Issue a new license key for an application. The key follows the "+
					"deployment key format and expires after the given number of days. "+
					"Returns the key and its expiry as epoch seconds.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("app",
				mcp.Required(),
				mcp.Description("Application id or name"),
			),
			mcp.WithNumber("days",
				mcp.Description("Validity in days, at least 1 (default 1)"),
			),
			mcp.WithString("note",
				mcp.Description("Free-form note stored with the key"),
			),
		),
		s.handleGenerateKey,
	)

	srv.AddTool(
		mcp.NewTool("keypanel_ban_key",
			mcp.WithDescription(
				"Ban or unban a license key. A banned key fails validation regardless "+
					"of expiry; unbanning restores its previous status.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("app",
				mcp.Required(),
				mcp.Description("Application id or name"),
			),
			mcp.WithString("key",
				mcp.Required(),
				mcp.Description("The license key"),
			),
			mcp.WithBoolean("ban",
				mcp.Description("true to ban (default), false to unban"),
			),
		),
		s.handleBanKey,
	)
}

// handleListApps returns every app with key counts.
func (s *MCPServer) handleListApps(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	apps, err := s.services.Apps.List(ctx)
	if err != nil {
		return s.serviceError(ctx, request.Params.Name, err)
	}
	return successJSON(apps)
}

// handleListKeys returns the keys of one app with derived status.
func (s *MCPServer) handleListKeys(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	app, failure := s.resolveApp(ctx, request)
	if failure != nil {
		return failure, nil
	}

	keys, err := s.services.Keys.List(ctx, app)
	if err != nil {
		return s.serviceError(ctx, request.Params.Name, err)
	}
	return successJSON(map[string]interface{}{
		"app":  app.Name,
		"keys": keys,
	})
}

// handleKeyStats returns aggregate key counts for one app.
func (s *MCPServer) handleKeyStats(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	app, failure := s.resolveApp(ctx, request)
	if failure != nil {
		return failure, nil
	}

	stats, err := s.services.Keys.Stats(ctx, app)
	if err != nil {
		return s.serviceError(ctx, request.Params.Name, err)
	}
	return successJSON(stats)
}

// handleGenerateKey issues a key for one app.
func (s *MCPServer) handleGenerateKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	app, failure := s.resolveApp(ctx, request)
	if failure != nil {
		return failure, nil
	}

	key, err := s.services.Keys.Generate(ctx, app, daysArg(request, "days"), optionalString(request, "note"))
	if err != nil {
		return s.serviceError(ctx, request.Params.Name, err)
	}
	return successJSON(map[string]interface{}{
		"app":     app.Name,
		"key":     key.Key,
		"created": key.Created,
		"expires": key.Expires,
		"note":    key.Note,
	})
}

// handleBanKey sets or clears the ban flag of a key.
func (s *MCPServer) handleBanKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	app, failure := s.resolveApp(ctx, request)
	if failure != nil {
		return failure, nil
	}
	token, err := requireString(request, "key")
	if err != nil {
		return toolError("%v", err)
	}
	ban := request.GetBool("ban", true)

	if err := s.services.Keys.SetBanned(ctx, app, token, ban); err != nil {
		return s.serviceError(ctx, request.Params.Name, err)
	}
	return successJSON(map[string]interface{}{
		"key":    token,
		"banned": ban,
	})
}
