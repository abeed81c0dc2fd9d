package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/parimoosavi/snaps-monorepo/internal/maputil"
	"github.com/parimoosavi/snaps-monorepo/internal/project"
)

// FixResult describes a manifest rewrite computed by Fix.
type FixResult struct {
	// Changed reports whether the rewrite differs from the file on disk.
	Changed bool

	// Diff is a unified diff from the current manifest to the fixed one.
	// Empty when nothing changed.
	Diff string

	// Data is the serialized fixed manifest.
	Data []byte
}

// Fix recomputes the derivable manifest fields — source.shasum from the
// built bundle, version and packageName from package.json — and returns the
// rewritten document together with a unified diff. The file on disk is not
// touched; call Write to persist.
func Fix(dir string) (*FixResult, error) {
	_, raw, err := Load(dir)
	if err != nil {
		return nil, err
	}

	before, err := Serialize(raw)
	if err != nil {
		return nil, err
	}

	fixed := maputil.DeepCopyMap(raw)

	if pkg, pkgErr := project.ReadPackageJSON(dir); pkgErr == nil {
		if pkg.Version != "" {
			fixed["version"] = pkg.Version
		}

		if pkg.Name != "" {
			npmLocation(fixed)["packageName"] = pkg.Name
		}
	}

	if filePath, ok := npmLocation(fixed)["filePath"].(string); ok && filePath != "" {
		bundlePath := filepath.Join(dir, filepath.FromSlash(filePath))

		data, readErr := os.ReadFile(bundlePath)
		if readErr != nil {
			return nil, fmt.Errorf("reading bundle for shasum: %w", readErr)
		}

		source(fixed)["shasum"] = Shasum(data)
	}

	after, err := Serialize(fixed)
	if err != nil {
		return nil, err
	}

	result := &FixResult{Data: after}

	if string(before) != string(after) {
		result.Changed = true

		diff, diffErr := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
			A:        difflib.SplitLines(string(before)),
			B:        difflib.SplitLines(string(after)),
			FromFile: FileName,
			ToFile:   FileName + " (fixed)",
			Context:  3,
		})
		if diffErr != nil {
			return nil, fmt.Errorf("computing manifest diff: %w", diffErr)
		}

		result.Diff = diff
	}

	return result, nil
}

// Write persists the fixed manifest to dir.
func (f *FixResult) Write(dir string) error {
	path := filepath.Join(dir, FileName)

	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

// source returns the manifest's source map, creating it if absent.
func source(raw map[string]any) map[string]any {
	return childMap(raw, "source")
}

// npmLocation returns source.location.npm, creating intermediate maps as
// needed.
func npmLocation(raw map[string]any) map[string]any {
	return childMap(childMap(childMap(raw, "source"), "location"), "npm")
}

func childMap(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}

	m := map[string]any{}
	parent[key] = m

	return m
}
