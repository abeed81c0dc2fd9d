package watch

import (
	"path/filepath"
	"strings"
)

// Matcher vetoes dispatch for a path. Matchers are evaluated in order; any
// match excludes the event.
type Matcher func(path string) bool

// DefaultMatchers returns the standard exclusion list for a watch session:
// dependency trees, the build output directory, test trees and test files,
// and dot-prefixed entries (the root itself exempt).
func DefaultMatchers(root, outDir string) []Matcher {
	return []Matcher{
		IgnoreSegment("node_modules"),
		IgnoreUnder(outDir),
		IgnoreSegment("test"),
		IgnoreSegment("tests"),
		IgnoreTestFiles(),
		IgnoreHidden(root),
	}
}

// IgnoreSegment matches any path containing name as a full path segment.
func IgnoreSegment(name string) Matcher {
	return func(path string) bool {
		for _, seg := range splitSegments(path) {
			if seg == name {
				return true
			}
		}

		return false
	}
}

// IgnoreUnder matches any path equal to or under dir. An empty dir never
// matches. Both sides are resolved to absolute form first: the configured
// output dir is often relative while watcher event names follow the form of
// the source path, and a mixed comparison must still match.
func IgnoreUnder(dir string) Matcher {
	if dir == "" {
		return func(string) bool { return false }
	}

	absDir, dirErr := filepath.Abs(dir)

	return func(path string) bool {
		if dirErr != nil {
			return false
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			return false
		}

		rel, err := filepath.Rel(absDir, absPath)
		if err != nil {
			return false
		}

		return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
	}
}

// IgnoreTestFiles matches test-file naming conventions (*.test.js, *.test.ts).
func IgnoreTestFiles() Matcher {
	return func(path string) bool {
		base := filepath.Base(path)

		return strings.HasSuffix(base, ".test.js") || strings.HasSuffix(base, ".test.ts")
	}
}

// IgnoreHidden matches any path whose final segment starts with a dot,
// except the watch root itself. The root-exempt comparison resolves both
// sides to absolute form so a relative root exempts its absolute event name
// and vice versa.
func IgnoreHidden(root string) Matcher {
	absRoot, rootErr := filepath.Abs(root)

	return func(path string) bool {
		if absPath, err := filepath.Abs(path); rootErr == nil && err == nil && absPath == absRoot {
			return false
		}

		base := filepath.Base(path)

		return strings.HasPrefix(base, ".") && base != "." && base != ".."
	}
}

// Ignored reports whether any matcher vetoes path.
func Ignored(path string, matchers []Matcher) bool {
	for _, m := range matchers {
		if m(path) {
			return true
		}
	}

	return false
}

func splitSegments(path string) []string {
	return strings.FieldsFunc(filepath.ToSlash(path), func(r rune) bool { return r == '/' })
}
