package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	appsURI         = "keypanel://apps"
	appKeysTemplate = "keypanel://apps/{app}/keys"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// keypanel://apps: registered applications with key counts
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			appsURI,
			"Registered Applications",
			mcp.WithResourceDescription(
				"All applications registered in keypanel with key counts. "+
					"Secret keys are never included.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleAppsResource,
	)

	// -------------------------------------------------------------------
	// keypanel://apps/{app}/keys: keys of one application (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			appKeysTemplate,
			"Application Keys",
			mcp.WithTemplateDescription(
				"License keys of one application, addressed by id or name, "+
					"with derived status and remaining time.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleAppKeysResource,
	)
}

// handleAppsResource returns a JSON list of all apps.
func (s *MCPServer) handleAppsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	apps, err := s.services.Apps.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	return jsonContents(appsURI, apps)
}

// handleAppKeysResource returns the keys of the app named in the URI.
func (s *MCPServer) handleAppKeysResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	uri := request.Params.URI
	ref, ok := strings.CutPrefix(uri, appsURI+"/")
	if ok {
		ref, ok = strings.CutSuffix(ref, "/keys")
	}
	if !ok || ref == "" || strings.Contains(ref, "/") {
		return nil, fmt.Errorf("invalid URI %q: expected %s", uri, appKeysTemplate)
	}

	app, err := s.services.Apps.Resolve(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("app %q: %w", ref, err)
	}
	keys, err := s.services.Keys.List(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys for %q: %w", app.Name, err)
	}
	return jsonContents(uri, keys)
}

func jsonContents(uri string, v interface{}) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
