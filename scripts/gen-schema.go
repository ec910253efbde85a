//go:build ignore

// Regenerates schemas/actions-v1.json from the Go struct definitions.
// Run with: go run scripts/gen-schema.go
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridpilot/gridpilot/pkg/schema"
)

func main() {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate schema: %v\n", err)
		os.Exit(1)
	}
	out := filepath.Join("schemas", "actions-v1.json")
	if err := os.MkdirAll("schemas", 0755); err != nil {
		fmt.Fprintf(os.Stderr, "create schemas dir: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", out, len(data))
}
