package http_test

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kisansahayak/agrimonitor/api"
)

func loadOpenAPI(t *testing.T) *openapi3.T {
	t.Helper()
	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(api.OpenAPISpec)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}
	return spec
}

// TestOpenAPISpec validates the embedded OpenAPI document.
func TestOpenAPISpec(t *testing.T) {
	spec := loadOpenAPI(t)

	if err := spec.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/fields",
		"/v1/fields/{id}",
		"/v1/fields/{id}/sightings",
		"/v1/readings",
		"/v1/readings/{id}",
		"/v1/tiles",
		"/graphql",
	}
	for _, path := range expectedPaths {
		if item := spec.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found", path)
		}
	}

	expectedSchemas := []string{
		"Error",
		"Pagination",
		"LatLng",
		"Geometry",
		"FieldInput",
		"Field",
		"FieldDetail",
		"Sighting",
		"ReadingInput",
		"Reading",
		"Tile",
	}
	for _, schema := range expectedSchemas {
		if spec.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI document valid: %d paths, %d schemas", len(spec.Paths.Map()), len(spec.Components.Schemas))
}

// TestOpenAPIInfo verifies document metadata.
func TestOpenAPIInfo(t *testing.T) {
	spec := loadOpenAPI(t)

	if spec.Info.Title != "Agrimonitor Field API" {
		t.Errorf("expected title 'Agrimonitor Field API', got %q", spec.Info.Title)
	}
	if spec.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", spec.Info.Version)
	}
	if spec.Info.Description == "" {
		t.Error("expected non-empty description")
	}
	if len(spec.Servers) == 0 {
		t.Fatal("expected at least one server")
	}
}

// TestOpenAPIReadingIntake checks that intake documents both body encodings.
func TestOpenAPIReadingIntake(t *testing.T) {
	spec := loadOpenAPI(t)

	post := spec.Paths.Find("/v1/readings").Post
	if post == nil || post.RequestBody == nil || post.RequestBody.Value == nil {
		t.Fatal("expected POST /v1/readings with a request body")
	}
	for _, ct := range []string{"application/json", "multipart/form-data"} {
		if post.RequestBody.Value.Content.Get(ct) == nil {
			t.Errorf("expected %s request content", ct)
		}
	}
}
