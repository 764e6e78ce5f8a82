package arch_test

import (
	"slices"
	"testing"
)

// layers assigns each internal package to a numeric layer. A package at
// layer N may only import packages at layer N or below.
var layers = map[string]int{
	"config":    0,
	"schedule":  0,
	"telemetry": 0,

	"baseline": 1,
	"conflict": 1,
	"dag":      1,
	"evm":      1,

	"snapshot":       2,
	"store":          2,
	"store/postgres": 2,
	"validate":       2,

	"cpm": 3,

	"optimize": 4,

	"engine": 5,

	"server": 6,
	"ui":     6,
}

// TestDependencyLayering verifies that no internal package imports one
// from a higher layer.
func TestDependencyLayering(t *testing.T) {
	t.Parallel()

	for _, p := range packages(t) {
		from, ok := layers[p.Name]
		if !ok {
			continue
		}
		for _, imp := range p.internalImports() {
			if to, ok := layers[imp]; ok && to > from {
				t.Errorf("layer violation: %s (layer %d) imports %s (layer %d)", p.Name, from, imp, to)
			}
		}
	}
}

// TestNoUnknownPackages makes every new internal package take a place in
// the layer map.
func TestNoUnknownPackages(t *testing.T) {
	t.Parallel()

	for _, p := range packages(t) {
		if _, ok := layers[p.Name]; !ok {
			t.Errorf("package %s has no layer assignment; add it to the layers map", p.Name)
		}
	}
}

// computePkgs work only on values handed to them. Reading files,
// databases or the network belongs to the packages above them.
var computePkgs = []string{"schedule", "dag", "validate", "cpm", "optimize", "conflict", "baseline", "evm"}

// ioImports are standard library packages compute packages must not import.
var ioImports = []string{"os", "os/exec", "io/fs", "net", "net/http", "database/sql"}

// TestComputePackagesAvoidIO verifies that compute packages import no
// file, process, network or database packages.
func TestComputePackagesAvoidIO(t *testing.T) {
	t.Parallel()

	for _, name := range computePkgs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for _, path := range packageNamed(t, name).importPaths() {
				if slices.Contains(ioImports, path) {
					t.Errorf("%s imports %s; compute packages must not perform I/O", name, path)
				}
			}
		})
	}
}
