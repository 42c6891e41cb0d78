// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ZAC Contributors

// Command gen-schema writes the blueprint policy JSON schemas, one file per
// object type, so seed files and API clients can validate policies offline.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/zaakcentrum/zac/internal/authz"
	"github.com/zaakcentrum/zac/internal/authz/blueprint"
)

func main() {
	dir := "schemas"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := generate(dir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func generate(dir string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	for _, ot := range authz.ObjectTypes() {
		schema, err := blueprint.Schema(ot)
		if err != nil {
			return fmt.Errorf("generate %s schema: %w", ot, err)
		}
		path := filepath.Join(dir, "policy."+string(ot)+".schema.json")
		if err := os.WriteFile(path, schema, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("Generated %s\n", path)
	}
	return nil
}
