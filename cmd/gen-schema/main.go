// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

// Command gen-schema writes the JSON Schema of every API request body.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/passgate/passgate/internal/web"
)

func main() {
	outDir := "schemas"
	if len(os.Args) > 1 {
		outDir = os.Args[1]
	}

	written, err := writeSchemas(outDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schemas: %v\n", err)
		os.Exit(1)
	}
	for _, path := range written {
		fmt.Printf("Generated %s\n", path)
	}
}

// writeSchemas writes <name>.schema.json files into dir and returns their
// paths in name order.
func writeSchemas(dir string) ([]string, error) {
	schemas, err := web.GenerateSchemas()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name+".schema.json")
		if err := os.WriteFile(path, append(schemas[name], '\n'), 0o600); err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
