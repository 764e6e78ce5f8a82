package arch_test

import (
	"go/ast"
	"go/parser"
	"go/token"
	"slices"
	"testing"
)

// allowedGlobals lists package-level vars that are intentionally global but
// fail the shape checks in allowedShape.
var allowedGlobals = map[string][]string{
	// decimal.Decimal has no constant form; these thresholds are never
	// reassigned and every decimal operation returns a new value.
	"evm": {"zero", "one", "hundred", "tenPct", "twentyPct", "idx080", "idx085", "idx090", "idx120"},
	// Percentage base for variance calculations, same reasoning.
	"baseline": {"hundred"},
}

// packageVar is one name declared by a package-level var spec.
type packageVar struct {
	name string
	spec *ast.ValueSpec
	idx  int
	file string
}

// packageVars returns every non-blank package-level var of p.
func packageVars(p *goPackage) []packageVar {
	var out []packageVar
	for _, f := range p.Files {
		out = append(out, fileVars(f.AST, f.Rel)...)
	}
	return out
}

func fileVars(f *ast.File, rel string) []packageVar {
	var out []packageVar
	for _, decl := range f.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.VAR {
			continue
		}
		for _, spec := range gd.Specs {
			vs := spec.(*ast.ValueSpec)
			for i, n := range vs.Names {
				if n.Name != "_" {
					out = append(out, packageVar{name: n.Name, spec: vs, idx: i, file: rel})
				}
			}
		}
	}
	return out
}

// allowedShape accepts the var shapes that are constant in practice: error
// sentinels, compiled regexps, sync and atomic values, basic literals and
// composite literal tables.
func allowedShape(v packageVar) bool {
	if typ, ok := v.spec.Type.(*ast.Ident); ok && typ.Name == "error" {
		return true
	}
	if pkg, _ := selector(v.spec.Type); pkg == "sync" || pkg == "atomic" {
		return true
	}
	if v.idx >= len(v.spec.Values) {
		return false
	}
	switch val := v.spec.Values[v.idx].(type) {
	case *ast.BasicLit, *ast.CompositeLit:
		return true
	case *ast.CallExpr:
		switch pkg, fn := selector(val.Fun); {
		case pkg == "errors" && fn == "New",
			pkg == "fmt" && fn == "Errorf",
			pkg == "regexp" && fn == "MustCompile":
			return true
		}
	}
	return false
}

// selector splits a pkg.Name expression.
func selector(expr ast.Expr) (pkg, name string) {
	sel, ok := expr.(*ast.SelectorExpr)
	if !ok {
		return "", ""
	}
	x, ok := sel.X.(*ast.Ident)
	if !ok {
		return "", ""
	}
	return x.Name, sel.Sel.Name
}

// TestNoMutableGlobalState flags package-level vars that are neither an
// allowed shape nor listed in allowedGlobals.
func TestNoMutableGlobalState(t *testing.T) {
	t.Parallel()

	for _, p := range packages(t) {
		t.Run(p.Name, func(t *testing.T) {
			t.Parallel()
			for _, v := range packageVars(p) {
				if allowedShape(v) || slices.Contains(allowedGlobals[p.Name], v.name) {
					continue
				}
				t.Errorf("mutable global state in %s: var %s; use dependency injection or move it into a function", v.file, v.name)
			}
		})
	}
}

// TestAllowedGlobalsAreUsed catches allowlist entries whose var was
// removed or renamed.
func TestAllowedGlobalsAreUsed(t *testing.T) {
	t.Parallel()

	for pkg, names := range allowedGlobals {
		t.Run(pkg, func(t *testing.T) {
			t.Parallel()
			var declared []string
			for _, v := range packageVars(packageNamed(t, pkg)) {
				declared = append(declared, v.name)
			}
			for _, name := range names {
				if !slices.Contains(declared, name) {
					t.Errorf("allowedGlobals[%q] lists %q but no such var exists; remove the stale entry", pkg, name)
				}
			}
		})
	}
}

func TestAllowedShape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		src   string
		allow bool
	}{
		{"errors.New sentinel", `import "errors"; var ErrFoo = errors.New("foo")`, true},
		{"fmt.Errorf sentinel", `import "fmt"; var ErrBar = fmt.Errorf("bar: %w", nil)`, true},
		{"typed error", `var errX error`, true},
		{"compiled regexp", `import "regexp"; var re = regexp.MustCompile("^foo$")`, true},
		{"sync.Once", `import "sync"; var once sync.Once`, true},
		{"string literal", `var name = "hello"`, true},
		{"int literal", `var count = 42`, true},
		{"slice table", `var items = []string{"a", "b"}`, true},
		{"map table", `var lookup = map[string]bool{"x": true}`, true},
		{"make map", `var m = make(map[string]string)`, false},
		{"make chan", `var ch = make(chan int)`, false},
		{"constructor call", `import "github.com/shopspring/decimal"; var one = decimal.NewFromInt(1)`, false},
		{"untyped zero value", `var counter int`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f, err := parser.ParseFile(token.NewFileSet(), "src.go", "package p; "+tt.src, 0)
			if err != nil {
				t.Fatalf("parsing: %v", err)
			}
			vars := fileVars(f, "src.go")
			if len(vars) != 1 {
				t.Fatalf("got %d vars, want 1", len(vars))
			}
			if got := allowedShape(vars[0]); got != tt.allow {
				t.Errorf("allowedShape(%s) = %v, want %v", vars[0].name, got, tt.allow)
			}
		})
	}
}
