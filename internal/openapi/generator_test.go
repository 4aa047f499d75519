package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestGenerateCoversEveryRoute(t *testing.T) {
	doc := Generate(Options{BaseURL: "http://localhost:8080"})

	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q, want 3.1.0", doc.OpenAPI)
	}
	if len(doc.Servers) != 1 || doc.Servers[0].URL != "http://localhost:8080" {
		t.Errorf("servers = %+v", doc.Servers)
	}

	for _, rt := range routes {
		item := doc.Paths.Value(rt.path)
		if item == nil {
			t.Errorf("missing path %s", rt.path)
			continue
		}
		op := item.GetOperation(rt.method)
		if op == nil {
			t.Errorf("missing %s %s", rt.method, rt.path)
			continue
		}
		if op.OperationID != rt.id {
			t.Errorf("%s %s: operationId = %q, want %q", rt.method, rt.path, op.OperationID, rt.id)
		}
		if op.Responses.Value("200") == nil {
			t.Errorf("%s: no 200 response", rt.id)
		}
	}
}

func TestGenerateReferencesResolve(t *testing.T) {
	doc := Generate(Options{})
	if len(doc.Servers) != 0 {
		t.Errorf("servers = %+v, want none without a base URL", doc.Servers)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	// Every $ref in the document must point at a defined component.
	const prefix = `"$ref":"#/components/schemas/`
	body := string(data)
	for {
		i := strings.Index(body, prefix)
		if i < 0 {
			break
		}
		body = body[i+len(prefix):]
		name := body[:strings.IndexByte(body, '"')]
		if _, ok := doc.Components.Schemas[name]; !ok {
			t.Errorf("dangling reference to %s", name)
		}
	}
}

func TestGenerateSecurity(t *testing.T) {
	tests := []struct {
		name      string
		adminAuth bool
		path      string
		method    string
		want      []string
	}{
		{"key route uses app credentials", false, "/api/keys", http.MethodGet, []string{"ownerId", "secretKey"}},
		{"admin route open by default", false, "/api/apps", http.MethodGet, nil},
		{"admin route with tokens", true, "/api/apps", http.MethodGet, []string{"bearerAuth"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Generate(Options{AdminAuth: tt.adminAuth})
			op := doc.Paths.Value(tt.path).GetOperation(tt.method)

			if tt.want == nil {
				if op.Security != nil {
					t.Errorf("security = %+v, want none", op.Security)
				}
				return
			}
			if op.Security == nil || len(*op.Security) != 1 {
				t.Fatalf("security = %+v", op.Security)
			}
			req := (*op.Security)[0]
			for _, scheme := range tt.want {
				if _, ok := req[scheme]; !ok {
					t.Errorf("missing scheme %s in %+v", scheme, req)
				}
				if _, ok := doc.Components.SecuritySchemes[scheme]; !ok {
					t.Errorf("scheme %s not declared", scheme)
				}
			}
		})
	}
}

func TestValidateDocumentsRateLimit(t *testing.T) {
	doc := Generate(Options{})
	op := doc.Paths.Value("/api/keys/validate").GetOperation(http.MethodPost)
	if op.Responses.Value("429") == nil {
		t.Error("validate should document 429")
	}
	if op.RequestBody == nil || !op.RequestBody.Value.Required {
		t.Error("validate should require a body")
	}
}

func TestNullableFields(t *testing.T) {
	doc := Generate(Options{})
	hwid := doc.Components.Schemas["KeyView"].Value.Properties["hwid"].Value
	if !hwid.Type.Includes("null") || !hwid.Type.Includes("string") {
		t.Errorf("hwid type = %v, want string|null", *hwid.Type)
	}
}
