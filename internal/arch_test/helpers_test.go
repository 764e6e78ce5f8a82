package arch_test

import (
	"bytes"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"testing"
)

const internalPrefix = "github.com/papapumpkin/parsec/internal/"

// sourceFile is one Go file below internal/. AST is nil for test files,
// which are only measured.
type sourceFile struct {
	Rel   string
	Lines int
	AST   *ast.File
}

// goPackage is one package below internal/, named by its path there, such
// as "cpm" or "store/postgres".
type goPackage struct {
	Name  string
	Fset  *token.FileSet
	Files []sourceFile
	Tests []sourceFile
}

var (
	treeOnce sync.Once
	tree     []*goPackage
	treeErr  error
)

// packages parses every package below internal/ once per test binary.
// The arch_test directory itself is skipped.
func packages(t *testing.T) []*goPackage {
	t.Helper()
	treeOnce.Do(func() { tree, treeErr = loadTree() })
	if treeErr != nil {
		t.Fatalf("loading internal packages: %v", treeErr)
	}
	return tree
}

// packageNamed returns one loaded package or fails the test.
func packageNamed(t *testing.T, name string) *goPackage {
	t.Helper()
	for _, p := range packages(t) {
		if p.Name == name {
			return p
		}
	}
	t.Fatalf("package internal/%s not found", name)
	return nil
}

func loadTree() ([]*goPackage, error) {
	root, err := repoRoot()
	if err != nil {
		return nil, err
	}
	internal := filepath.Join(root, "internal")
	byName := make(map[string]*goPackage)

	err = filepath.WalkDir(internal, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "arch_test" || d.Name() == "testdata" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		name, _ := filepath.Rel(internal, filepath.Dir(path))
		name = filepath.ToSlash(name)
		p, ok := byName[name]
		if !ok {
			p = &goPackage{Name: name, Fset: token.NewFileSet()}
			byName[name] = p
		}

		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		f := sourceFile{Rel: filepath.ToSlash(rel), Lines: lineCount(src)}
		if strings.HasSuffix(path, "_test.go") {
			p.Tests = append(p.Tests, f)
			return nil
		}
		if f.AST, err = parser.ParseFile(p.Fset, path, src, parser.ParseComments); err != nil {
			return err
		}
		p.Files = append(p.Files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*goPackage, 0, len(byName))
	for _, p := range byName {
		if len(p.Files) > 0 {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b *goPackage) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// repoRoot walks up from this file to the directory holding go.mod.
func repoRoot() (string, error) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", errors.New("runtime.Caller failed")
	}
	for dir := filepath.Dir(thisFile); ; dir = filepath.Dir(dir) {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		if parent := filepath.Dir(dir); parent == dir {
			return "", errors.New("no go.mod above " + thisFile)
		}
	}
}

// lineCount counts lines, including a final line without a newline.
func lineCount(src []byte) int {
	n := bytes.Count(src, []byte("\n"))
	if len(src) > 0 && src[len(src)-1] != '\n' {
		n++
	}
	return n
}

// importPaths returns the sorted, deduplicated imports of p's non-test files.
func (p *goPackage) importPaths() []string {
	var out []string
	for _, f := range p.Files {
		for _, imp := range f.AST.Imports {
			out = append(out, strings.Trim(imp.Path.Value, `"`))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// internalImports returns the internal packages p imports, named like
// goPackage.Name.
func (p *goPackage) internalImports() []string {
	var out []string
	for _, path := range p.importPaths() {
		if name, ok := strings.CutPrefix(path, internalPrefix); ok {
			out = append(out, name)
		}
	}
	return out
}

// receiverName returns the base type name of a method receiver.
func receiverName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	expr := recv.List[0].Type
	for {
		switch e := expr.(type) {
		case *ast.StarExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.IndexListExpr:
			expr = e.X
		case *ast.Ident:
			return e.Name
		default:
			return ""
		}
	}
}

func TestPackagesLoaded(t *testing.T) {
	t.Parallel()

	var names []string
	for _, p := range packages(t) {
		names = append(names, p.Name)
	}
	for _, want := range []string{"schedule", "cpm", "engine", "store", "store/postgres"} {
		if !slices.Contains(names, want) {
			t.Errorf("package %s missing from %v", want, names)
		}
	}
	if slices.Contains(names, "arch_test") {
		t.Error("arch_test should not be scanned")
	}

	cpm := packageNamed(t, "cpm")
	if !slices.Contains(cpm.internalImports(), "dag") {
		t.Errorf("cpm imports %v, want dag among them", cpm.internalImports())
	}
	if len(cpm.Tests) == 0 {
		t.Error("cpm test files were not collected")
	}
}

func TestLineCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src  string
		want int
	}{
		{"", 0},
		{"package p\n", 1},
		{"package p\n\nfunc f() {}", 3},
	}
	for _, tt := range tests {
		if got := lineCount([]byte(tt.src)); got != tt.want {
			t.Errorf("lineCount(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}
