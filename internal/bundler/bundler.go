// Package bundler implements the §4.2 script bundler: starting from an
// entry source file, it resolves every relative ESM import into a
// single self-contained script, injects the ABI JSON as a global string
// constant by convention, and rejects dynamic imports outright.
//
// Import/export resolution is done by line-oriented scanning rather than
// a full ESM-aware AST walk: the grammar this stage cares about (which
// lines are import/export statements, and what relative path a static
// import names) is small and regular enough that a textual pass is both
// simpler and more predictable than threading ECMAScript-module parsing
// through goja's script-mode parser.
package bundler

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rakunlabs/wasmsvc/internal/abi"
)

// FileReader abstracts the filesystem the bundler resolves imports
// against; internal/pipeline supplies a real os.ReadFile-backed one,
// tests supply an in-memory map.
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// MapReader is an in-memory FileReader for tests and for hermetic
// single-file builds.
type MapReader map[string][]byte

func (m MapReader) ReadFile(p string) ([]byte, error) {
	b, ok := m[p]
	if !ok {
		return nil, fmt.Errorf("bundler: no such file %q", p)
	}
	return b, nil
}

// abiConstName is the global the bundled script exposes the manifest
// JSON under, by convention with the generated C wrapper (§4.3) that
// reads the same bytes back out of the compiled bytecode's module
// namespace.
const abiConstName = "__ABI_JSON__"

var (
	staticImportRe = regexp.MustCompile(`(?m)^\s*import\s+(?:[^;'"]*\sfrom\s+)?["']([^"']+)["'];?\s*$`)
	dynamicImportRe = regexp.MustCompile(`\bimport\s*\(`)
	exportPrefixRe  = regexp.MustCompile(`(?m)^(\s*)export\s+default\s+`)
	exportKeywordRe = regexp.MustCompile(`(?m)^(\s*)export\s+((?:class|function|const|let|var)\b)`)
)

// Result is the bundler's output: the single concatenated script plus
// any warnings collected while stripping/resolving imports.
type Result struct {
	Source   []byte
	Warnings []string
}

// Bundle resolves entryPath's import graph through reader and returns a
// single script with the ABI manifest embedded as a global constant.
func Bundle(entryPath string, reader FileReader, manifest *abi.Manifest) (*Result, error) {
	r := &Result{}
	visited := make(map[string]bool)
	order := make([]string, 0, 8)
	bodies := make(map[string]string)

	var visit func(p string, stack []string) error
	visit = func(p string, stack []string) error {
		for _, s := range stack {
			if s == p {
				return fmt.Errorf("bundler: import cycle: %s -> %s", strings.Join(stack, " -> "), p)
			}
		}
		if visited[p] {
			return nil
		}
		visited[p] = true

		raw, err := reader.ReadFile(p)
		if err != nil {
			return err
		}
		src := string(raw)

		if loc := dynamicImportRe.FindStringIndex(src); loc != nil {
			return fmt.Errorf("bundler: dynamic import() is not allowed (file %s)", p)
		}

		dir := path.Dir(p)
		for _, m := range staticImportRe.FindAllStringSubmatch(src, -1) {
			spec := m[1]
			if !strings.HasPrefix(spec, "./") && !strings.HasPrefix(spec, "../") {
				r.Warnings = append(r.Warnings, fmt.Sprintf("%s: ignoring non-relative import %q (bare module specifiers aren't bundled)", p, spec))
				continue
			}
			resolved := path.Clean(path.Join(dir, spec))
			if path.Ext(resolved) == "" {
				resolved += ".js"
			}
			if err := visit(resolved, append(stack, p)); err != nil {
				return err
			}
		}

		body := staticImportRe.ReplaceAllString(src, "")
		body = exportPrefixRe.ReplaceAllString(body, "$1")
		body = exportKeywordRe.ReplaceAllString(body, "${1}${2}")
		bodies[p] = body
		order = append(order, p)
		return nil
	}

	if err := visit(entryPath, nil); err != nil {
		return nil, err
	}

	abiJSON, err := manifest.CanonicalJSON()
	if err != nil {
		return nil, fmt.Errorf("bundler: encoding ABI manifest: %w", err)
	}

	var out strings.Builder
	out.WriteString("// generated by internal/bundler; do not edit by hand\n")
	out.WriteString("const " + abiConstName + " = " + strconv.Quote(string(abiJSON)) + ";\n\n")
	for _, p := range order {
		out.WriteString(bodies[p])
		if !strings.HasSuffix(bodies[p], "\n") {
			out.WriteString("\n")
		}
	}

	r.Source = []byte(out.String())
	sort.Strings(r.Warnings)
	return r, nil
}
