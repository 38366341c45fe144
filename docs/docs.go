// Package docs carries the API description compiled into the server binary.
package docs

import _ "embed"

//go:embed openapi.yaml
var OpenAPI []byte
