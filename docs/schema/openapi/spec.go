// Package openapi embeds the OpenAPI description of the agritrace HTTP API.
package openapi

import _ "embed"

// AgritraceSpec is the raw OpenAPI YAML document.
//
//go:embed agritrace.yaml
var AgritraceSpec []byte

// Spec returns a copy of the embedded OpenAPI YAML.
func Spec() []byte {
	return append([]byte(nil), AgritraceSpec...)
}
