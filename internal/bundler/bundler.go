// Package bundler compiles a snap entry file and its relative imports into
// a single self-contained JavaScript artifact.
//
// Relative CommonJS requires and a small subset of ES import/export syntax
// are resolved at build time and inlined into a module registry. Bare
// specifiers (e.g. packages under node_modules) are left untouched and
// resolve at runtime in the host environment.
package bundler

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Options controls a single bundle invocation.
type Options struct {
	// StripComments removes comments from every inlined module.
	StripComments bool

	// Extra carries arbitrary passthrough build options from the CLI or the
	// project config hook. Unknown keys are ignored by the bundler itself
	// but surface in the artifact header for downstream tooling.
	Extra map[string]any
}

// CustomizeFunc mutates bundler options before a bundle run. The project
// config hook is applied through this.
type CustomizeFunc func(*Options)

// Bundle reads the entry file at srcPath, resolves its relative import
// graph, and returns the assembled artifact. customize, when non-nil, is
// applied to a copy of opts before bundling.
func Bundle(ctx context.Context, srcPath string, opts Options, customize CustomizeFunc) ([]byte, error) {
	if customize != nil {
		customize(&opts)
	}

	graph, err := resolveGraph(ctx, srcPath)
	if err != nil {
		return nil, err
	}

	var b strings.Builder

	b.WriteString(header(opts))
	b.WriteString(prelude)

	for _, mod := range graph.modules {
		source := mod.source
		if opts.StripComments {
			source = stripComments(source)
		}

		fmt.Fprintf(&b, "__register(%q, function (module, exports, __require) {\n", mod.id)
		b.WriteString(source)

		if !strings.HasSuffix(source, "\n") {
			b.WriteString("\n")
		}

		b.WriteString("});\n")
	}

	fmt.Fprintf(&b, "__require(%q);\n})();\n", graph.entryID)

	return []byte(b.String()), nil
}

// header renders the artifact banner. Extra options are listed in sorted
// order so repeated builds of an unchanged tree are byte-identical.
func header(opts Options) string {
	if len(opts.Extra) == 0 {
		return ""
	}

	keys := make([]string, 0, len(opts.Extra))
	for k := range opts.Extra {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("/* snap build options:")

	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, opts.Extra[k])
	}

	b.WriteString(" */\n")

	return b.String()
}

// prelude is the module registry runtime every artifact starts with.
const prelude = `(function () {
'use strict';
var __modules = Object.create(null);
var __cache = Object.create(null);
function __register(id, factory) { __modules[id] = factory; }
function __require(id) {
  if (__cache[id]) { return __cache[id].exports; }
  var factory = __modules[id];
  if (!factory) { throw new Error('module not found: ' + id); }
  var module = { exports: {} };
  __cache[id] = module;
  factory(module, module.exports, __require);
  return module.exports;
}
`

// moduleID normalizes a resolved file path into a registry id relative to
// the entry file's directory.
func moduleID(entryDir, path string) (string, error) {
	rel, err := filepath.Rel(entryDir, path)
	if err != nil {
		return "", fmt.Errorf("computing module id for %q: %w", path, err)
	}

	return filepath.ToSlash(rel), nil
}
