// Package openapi describes the keypanel HTTP API as an OpenAPI 3.1 document.
package openapi

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// Version is the API version reported in the document.
const Version = "1.0.0"

// Options control the generated document.
type Options struct {
	// BaseURL is advertised as the single server entry. Empty omits it.
	BaseURL string
	// AdminAuth marks the app-management routes as requiring a bearer token.
	AdminAuth bool
}

// route is one operation in the document.
type route struct {
	method    string
	path      string
	id        string
	summary   string
	tag       string
	request   string // component name of the JSON body, if any
	response  string // component name of the 200 body
	security  string // "app", "admin" or "" for none
	pathParam string
}

var routes = []route{
	{method: http.MethodPost, path: "/api/apps/create", id: "createApp", summary: "Register an application", tag: "apps",
		request: "CreateAppRequest", response: "AppCreatedResponse", security: "admin"},
	{method: http.MethodGet, path: "/api/apps", id: "listApps", summary: "List applications with key counts", tag: "apps",
		response: "AppListResponse", security: "admin"},
	{method: http.MethodDelete, path: "/api/apps/{id}", id: "deleteApp", summary: "Delete an application and its keys", tag: "apps",
		response: "Result", security: "admin", pathParam: "id"},
	{method: http.MethodPost, path: "/api/apps/{id}/rotate", id: "rotateAppSecret", summary: "Replace an application's secret key", tag: "apps",
		response: "AppCreatedResponse", security: "admin", pathParam: "id"},
	{method: http.MethodGet, path: "/api/settings", id: "getSettings", summary: "Read deployment settings", tag: "settings",
		response: "SettingsResponse", security: "admin"},
	{method: http.MethodPost, path: "/api/settings", id: "updateSettings", summary: "Update deployment settings", tag: "settings",
		request: "UpdateSettingsRequest", response: "SettingsResponse", security: "admin"},
	{method: http.MethodPost, path: "/api/keys/generate", id: "generateKey", summary: "Issue a license key", tag: "keys",
		request: "GenerateKeyRequest", response: "KeyGeneratedResponse", security: "app"},
	{method: http.MethodPost, path: "/api/keys/validate", id: "validateKey", summary: "Validate a key and bind its hardware id", tag: "keys",
		request: "ValidateKeyRequest", response: "ValidationResult", security: "app"},
	{method: http.MethodPost, path: "/api/keys/ban", id: "banKey", summary: "Ban or unban a key", tag: "keys",
		request: "BanKeyRequest", response: "BanResponse", security: "app"},
	{method: http.MethodPost, path: "/api/keys/note", id: "setKeyNote", summary: "Replace a key's note", tag: "keys",
		request: "NoteKeyRequest", response: "Result", security: "app"},
	{method: http.MethodPost, path: "/api/keys/reset-hwid", id: "resetKeyHWID", summary: "Clear a key's hardware binding", tag: "keys",
		request: "KeyRequest", response: "Result", security: "app"},
	{method: http.MethodPost, path: "/api/keys/extend", id: "extendKey", summary: "Extend a key's expiry", tag: "keys",
		request: "ExtendKeyRequest", response: "ExtendResponse", security: "app"},
	{method: http.MethodDelete, path: "/api/keys/{key}", id: "deleteKey", summary: "Delete a key", tag: "keys",
		response: "DeleteResponse", security: "app", pathParam: "key"},
	{method: http.MethodGet, path: "/api/keys", id: "listKeys", summary: "List keys with status and remaining time", tag: "keys",
		response: "KeyListResponse", security: "app"},
	{method: http.MethodGet, path: "/api/stats", id: "keyStats", summary: "Aggregate key counts", tag: "keys",
		response: "KeyStats", security: "app"},
}

// Generate builds the OpenAPI document for the keypanel API.
func Generate(opts Options) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "keypanel API",
			Description: "License key issuance and validation for registered applications.",
			Version:     Version,
		},
		Components: &openapi3.Components{
			Schemas:         componentSchemas(),
			SecuritySchemes: securitySchemes(),
		},
		Paths: openapi3.NewPaths(),
		Tags: openapi3.Tags{
			{Name: "apps", Description: "Application registry"},
			{Name: "keys", Description: "License key lifecycle"},
			{Name: "settings", Description: "Deployment settings"},
		},
	}
	if opts.BaseURL != "" {
		doc.Servers = openapi3.Servers{{URL: opts.BaseURL}}
	}

	for _, rt := range routes {
		item := doc.Paths.Value(rt.path)
		if item == nil {
			item = &openapi3.PathItem{}
			doc.Paths.Set(rt.path, item)
		}
		item.SetOperation(rt.method, buildOperation(rt, opts))
	}

	return doc
}

func buildOperation(rt route, opts Options) *openapi3.Operation {
	op := &openapi3.Operation{
		OperationID: rt.id,
		Summary:     rt.summary,
		Tags:        []string{rt.tag},
		Responses:   newResponses(rt),
	}

	if rt.pathParam != "" {
		op.Parameters = openapi3.Parameters{{
			Value: openapi3.NewPathParameter(rt.pathParam).
				WithSchema(openapi3.NewStringSchema()),
		}}
	}

	if rt.request != "" {
		op.RequestBody = &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithRequired(true).
				WithContent(openapi3.NewContentWithJSONSchemaRef(componentRef(rt.request))),
		}
	}

	switch {
	case rt.security == "app":
		op.Security = &openapi3.SecurityRequirements{
			openapi3.NewSecurityRequirement().Authenticate("ownerId").Authenticate("secretKey"),
		}
	case rt.security == "admin" && opts.AdminAuth:
		op.Security = &openapi3.SecurityRequirements{
			openapi3.NewSecurityRequirement().Authenticate("bearerAuth"),
		}
	}

	return op
}

// newResponses builds the response map for a route. Input failures are
// reported as 200 with success=false, so only the guards and server errors get
// their own status codes.
func newResponses(rt route) *openapi3.Responses {
	responses := openapi3.NewResponses()
	responses.Delete("default")

	ok := "Successful response"
	responses.Set("200", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &ok,
		Content:     openapi3.NewContentWithJSONSchemaRef(componentRef(rt.response)),
	}})

	errRef := componentRef("ErrorResponse")
	if rt.request != "" {
		desc := "Malformed request body"
		responses.Set("400", &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errRef),
		}})
	}
	if rt.security != "" {
		desc := "Missing or invalid credentials"
		responses.Set("401", &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errRef),
		}})
	}
	if rt.id == "validateKey" {
		desc := "Too many requests"
		responses.Set("429", &openapi3.ResponseRef{Value: &openapi3.Response{
			Description: &desc,
			Content:     openapi3.NewContentWithJSONSchemaRef(errRef),
		}})
	}
	desc := "Internal error"
	responses.Set("500", &openapi3.ResponseRef{Value: &openapi3.Response{
		Description: &desc,
		Content:     openapi3.NewContentWithJSONSchemaRef(componentRef("Result")),
	}})

	return responses
}

func securitySchemes() openapi3.SecuritySchemes {
	return openapi3.SecuritySchemes{
		"ownerId": &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "X-Owner-ID",
			Description: "Owner id returned when the app was created",
		}},
		"secretKey": &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "X-Secret-Key",
			Description: "Secret key returned when the app was created or rotated",
		}},
		"bearerAuth": &openapi3.SecuritySchemeRef{Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Admin token issued with `keypanel admin token`",
		}},
	}
}

func componentSchemas() openapi3.Schemas {
	return openapi3.Schemas{
		"Result": object("Envelope for mutating endpoints",
			boolean("success", "").req(),
			str("error", "Present when success is false")),
		"ErrorResponse": object("Guard or rate limit failure",
			str("error", "").req()),

		"AppCredentials": object("App credentials, returned only on create and rotate",
			str("id", "").req(),
			str("name", "").req(),
			str("ownerId", "").req(),
			str("secretKey", "Shown once").req(),
			epoch("created", "Epoch seconds").req()),
		"AppSummary": object("App with key counts",
			str("id", "").req(),
			str("name", "").req(),
			str("ownerId", "").req(),
			epoch("created", "Epoch seconds").req(),
			integer("keyCount", "").req(),
			integer("activeKeys", "Keys neither banned nor expired").req()),
		"KeyView": object("License key with derived fields",
			str("key", "").req(),
			epoch("created", "Epoch seconds").req(),
			epoch("expires", "Epoch seconds").req(),
			boolean("banned", "").req(),
			str("note", "").req(),
			boolean("used", "").req(),
			epoch("lastUsed", "Epoch seconds").orNull(),
			str("hwid", "Bound hardware id").orNull(),
			field{name: "status", typ: tString, desc: "active, expired or banned"}.req(),
			str("remaining", "\"{d}d {h}h\", \"{h}h\" or \"Expired\"").req()),
		"KeyStats": object("Aggregate key counts",
			integer("total", "").req(),
			integer("active", "").req(),
			integer("banned", "").req(),
			integer("expired", "").req(),
			integer("used", "").req(),
			integer("hwidLocked", "").req()),
		"ValidationResult": object("Outcome of a validation",
			boolean("valid", "").req(),
			str("reason", "no_key, no_hwid, not_found, banned, expired or hwid_mismatch"),
			epoch("created", ""),
			epoch("expires", ""),
			str("hwid", ""),
			epoch("expiredAt", "Set when reason is expired")),
		"Settings": object("Deployment settings",
			str("keyFormat", "Template of X and - characters").req()),

		"AppCreatedResponse": object("",
			boolean("success", "").req(),
			ref("app", "AppCredentials").req()),
		"AppListResponse": object("",
			boolean("success", "").req(),
			list("apps", "AppSummary").req()),
		"KeyGeneratedResponse": object("",
			boolean("success", "").req(),
			str("key", "").req(),
			epoch("expires", "").req(),
			str("note", "").req()),
		"KeyListResponse": object("",
			boolean("success", "").req(),
			list("keys", "KeyView").req()),
		"BanResponse": object("",
			boolean("success", "").req(),
			boolean("banned", "").req()),
		"DeleteResponse": object("",
			boolean("success", "").req(),
			boolean("deleted", "False when the key did not exist").req()),
		"ExtendResponse": object("",
			boolean("success", "").req(),
			epoch("expires", "New expiry").req()),
		"SettingsResponse": object("",
			boolean("success", "").req(),
			ref("settings", "Settings").req()),

		"CreateAppRequest": object("",
			str("name", "At least two characters, unique ignoring case").req()),
		"UpdateSettingsRequest": object("",
			ref("settings", "Settings")),
		"GenerateKeyRequest": object("",
			integer("days", "Defaults to 1"),
			str("note", "")),
		"ValidateKeyRequest": object("",
			str("key", "").req(),
			str("hwid", "").req()),
		"BanKeyRequest": object("",
			str("key", "").req(),
			boolean("ban", "").req()),
		"NoteKeyRequest": object("",
			str("key", "").req(),
			str("note", "")),
		"KeyRequest": object("",
			str("key", "").req()),
		"ExtendKeyRequest": object("",
			str("key", "").req(),
			integer("days", "Defaults to 1")),
	}
}
