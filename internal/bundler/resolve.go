package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// module is one resolved source file in the import graph.
type module struct {
	id     string
	path   string
	source string
}

// graph holds the resolved modules in first-visit (dependency-first) order.
type graph struct {
	entryID string
	modules []*module
}

var (
	requireRe       = regexp.MustCompile(`require\(\s*['"](\.\.?/[^'"]+)['"]\s*\)`)
	importDefaultRe = regexp.MustCompile(`(?m)^[ \t]*import\s+([A-Za-z_$][\w$]*)\s+from\s+['"](\.\.?/[^'"]+)['"];?[ \t]*$`)
	importNamedRe   = regexp.MustCompile(`(?m)^[ \t]*import\s+(\{[^}]*\})\s+from\s+['"](\.\.?/[^'"]+)['"];?[ \t]*$`)
	importBareRe    = regexp.MustCompile(`(?m)^[ \t]*import\s+['"](\.\.?/[^'"]+)['"];?[ \t]*$`)
	exportDefaultRe = regexp.MustCompile(`(?m)^[ \t]*export\s+default\s+`)
)

// resolveGraph walks the relative import graph starting at srcPath.
func resolveGraph(ctx context.Context, srcPath string) (*graph, error) {
	abs, err := filepath.Abs(srcPath)
	if err != nil {
		return nil, fmt.Errorf("resolving entry path %q: %w", srcPath, err)
	}

	r := &resolver{
		entryDir: filepath.Dir(abs),
		seen:     map[string]*module{},
		visiting: map[string]bool{},
	}

	entry, err := r.visit(ctx, abs, nil)
	if err != nil {
		return nil, err
	}

	return &graph{entryID: entry.id, modules: r.ordered}, nil
}

type resolver struct {
	entryDir string
	seen     map[string]*module
	visiting map[string]bool
	ordered  []*module
}

// visit loads path, rewrites its imports, and recurses into dependencies.
// chain carries the require path for cycle reporting.
func (r *resolver) visit(ctx context.Context, path string, chain []string) (*module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if m, ok := r.seen[path]; ok {
		return m, nil
	}

	if r.visiting[path] {
		return nil, fmt.Errorf("circular import: %s", strings.Join(append(chain, path), " -> "))
	}

	r.visiting[path] = true
	defer delete(r.visiting, path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading module %q: %w", path, err)
	}

	id, err := moduleID(r.entryDir, path)
	if err != nil {
		return nil, err
	}

	source, err := r.rewrite(ctx, string(data), path, append(chain, path))
	if err != nil {
		return nil, err
	}

	m := &module{id: id, path: path, source: source}
	r.seen[path] = m
	r.ordered = append(r.ordered, m)

	return m, nil
}

// rewrite translates relative requires and the supported ES syntax subset
// into registry calls, visiting each dependency along the way.
func (r *resolver) rewrite(ctx context.Context, source, fromPath string, chain []string) (string, error) {
	fromDir := filepath.Dir(fromPath)

	var rewriteErr error

	resolveID := func(spec string) (string, bool) {
		dep, err := resolveSpec(fromDir, spec)
		if err != nil {
			rewriteErr = err
			return "", false
		}

		depMod, err := r.visit(ctx, dep, chain)
		if err != nil {
			rewriteErr = err
			return "", false
		}

		return depMod.id, true
	}

	// ES import forms first so the require rewrite does not touch them.
	source = importDefaultRe.ReplaceAllStringFunc(source, func(stmt string) string {
		m := importDefaultRe.FindStringSubmatch(stmt)

		id, ok := resolveID(m[2])
		if !ok {
			return stmt
		}

		return fmt.Sprintf("const %s = __require(%q);", m[1], id)
	})

	source = importNamedRe.ReplaceAllStringFunc(source, func(stmt string) string {
		m := importNamedRe.FindStringSubmatch(stmt)

		id, ok := resolveID(m[2])
		if !ok {
			return stmt
		}

		return fmt.Sprintf("const %s = __require(%q);", m[1], id)
	})

	source = importBareRe.ReplaceAllStringFunc(source, func(stmt string) string {
		m := importBareRe.FindStringSubmatch(stmt)

		id, ok := resolveID(m[1])
		if !ok {
			return stmt
		}

		return fmt.Sprintf("__require(%q);", id)
	})

	source = requireRe.ReplaceAllStringFunc(source, func(call string) string {
		m := requireRe.FindStringSubmatch(call)

		id, ok := resolveID(m[1])
		if !ok {
			return call
		}

		return fmt.Sprintf("__require(%q)", id)
	})

	if rewriteErr != nil {
		return "", rewriteErr
	}

	source = exportDefaultRe.ReplaceAllString(source, "module.exports = ")

	return source, nil
}

// resolveSpec maps a relative import specifier to a file on disk. The
// candidates mirror Node resolution for files: exact, .js suffix, index.js.
func resolveSpec(fromDir, spec string) (string, error) {
	base := filepath.Join(fromDir, filepath.FromSlash(spec))

	for _, candidate := range []string{base, base + ".js", filepath.Join(base, "index.js")} {
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return filepath.Abs(candidate)
		}
	}

	return "", fmt.Errorf("cannot resolve module %q imported from %s", spec, fromDir)
}
