package httpx

import (
	"os"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestOpenAPIDocumentsRoutes(t *testing.T) {
	data, err := os.ReadFile("../../docs/openapi.yaml")
	if err != nil {
		t.Fatalf("openapi missing: %v", err)
	}
	var doc struct {
		OpenAPI string                    `yaml:"openapi"`
		Paths   map[string]map[string]any `yaml:"paths"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("openapi document invalid: %v", err)
	}
	if doc.OpenAPI == "" {
		t.Fatal("openapi version missing")
	}
	for _, route := range Routes {
		if _, ok := doc.Paths[route]; !ok {
			t.Errorf("route %s is not documented", route)
		}
	}
	if _, ok := doc.Paths["/reload"]["post"]; !ok {
		t.Error("/reload must be documented as POST")
	}
}
