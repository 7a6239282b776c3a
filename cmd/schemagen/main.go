// Command schemagen compiles a YAML parameter schema (SPEC_FULL.md §4.A)
// into a Go parameter table plus a C header, for go:generate use in a
// consuming application's package.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agilira/themis/schemagen"
)

func main() {
	schemaPath := flag.String("schema", "", "path to the YAML parameter schema")
	outDir := flag.String("out", ".", "output directory for generated files")
	outBase := flag.String("name", "params", "output basename (produces <name>_params.go and <name>.h)")
	pkg := flag.String("package", "main", "package name for the generated Go file")
	flag.Parse()

	if *schemaPath == "" {
		fmt.Fprintln(os.Stderr, "schemagen: -schema is required")
		os.Exit(2)
	}

	if err := run(*schemaPath, *outDir, *outBase, *pkg); err != nil {
		fmt.Fprintf(os.Stderr, "schemagen: %v\n", err)
		os.Exit(1)
	}
}

func run(schemaPath, outDir, outBase, pkg string) error {
	data, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("reading schema: %w", err)
	}

	schema, err := schemagen.Compile(data)
	if err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}

	goSrc, err := schemagen.GenerateGo(pkg, schema)
	if err != nil {
		return fmt.Errorf("generating Go source: %w", err)
	}
	goPath := filepath.Join(outDir, outBase+"_params.go")
	if err := os.WriteFile(goPath, goSrc, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", goPath, err)
	}

	header, err := schemagen.GenerateCHeader(outBase, schema)
	if err != nil {
		return fmt.Errorf("generating C header: %w", err)
	}
	headerPath := filepath.Join(outDir, outBase+".h")
	if err := os.WriteFile(headerPath, header, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", headerPath, err)
	}

	fmt.Printf("schemagen: wrote %s and %s (%d parameters, schema version %d)\n",
		goPath, headerPath, len(schema.Parameters), schema.Version)
	return nil
}
