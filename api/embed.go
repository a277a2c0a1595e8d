// Package api holds the HTTP API description served at /docs.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3 document for the REST surface.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
