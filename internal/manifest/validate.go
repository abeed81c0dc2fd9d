package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/parimoosavi/snaps-monorepo/internal/project"
)

// maxDescriptionLen mirrors the directory listing limit for snap descriptions.
const maxDescriptionLen = 280

// Severity indicates how serious a validation finding is.
type Severity int

const (
	// SeverityError means the manifest is invalid.
	SeverityError Severity = iota
	// SeverityWarning means the manifest may be problematic.
	SeverityWarning
)

// String returns the severity name.
func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}

	return "warning"
}

// Finding is a single validation issue.
type Finding struct {
	Severity Severity
	Field    string
	Message  string
}

// Error implements the error interface.
func (f *Finding) Error() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Field, f.Message)
}

// Result holds all findings from a validation run.
type Result struct {
	Findings []Finding
}

// Errors returns only error-severity findings.
func (r *Result) Errors() []Finding {
	var out []Finding

	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}

	return out
}

// Warnings returns only warning-severity findings.
func (r *Result) Warnings() []Finding {
	var out []Finding

	for _, f := range r.Findings {
		if f.Severity == SeverityWarning {
			out = append(out, f)
		}
	}

	return out
}

// HasErrors reports whether any error-severity findings exist.
func (r *Result) HasErrors() bool { return len(r.Errors()) > 0 }

// HasWarnings reports whether any warning-severity findings exist.
func (r *Result) HasWarnings() bool { return len(r.Warnings()) > 0 }

func (r *Result) addError(field, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityError, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (r *Result) addWarning(field, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{Severity: SeverityWarning, Field: field, Message: fmt.Sprintf(format, args...)})
}

// Format renders a result as human-readable lines, errors first.
func (r *Result) Format() string {
	if len(r.Findings) == 0 {
		return "manifest is valid\n"
	}

	var b strings.Builder

	for _, f := range r.Errors() {
		fmt.Fprintf(&b, "%s\n", f.Error())
	}

	for _, f := range r.Warnings() {
		fmt.Fprintf(&b, "%s\n", f.Error())
	}

	return b.String()
}

// Check validates the manifest in dir against the bundle it references and
// the project's package.json. It returns an error only when the manifest
// itself cannot be read; everything else becomes a finding.
func Check(dir string) (*Result, error) {
	m, _, err := Load(dir)
	if err != nil {
		return nil, err
	}

	result := &Result{}

	checkRequiredFields(m, result)
	checkVersion(m, result)
	checkBundle(dir, m, result)
	checkPackageJSON(dir, m, result)

	return result, nil
}

func checkRequiredFields(m *Manifest, r *Result) {
	if m.Version == "" {
		r.addError("version", "missing required field")
	}

	if m.Description == "" {
		r.addError("description", "missing required field")
	} else if len(m.Description) > maxDescriptionLen {
		r.addWarning("description", "exceeds %d characters", maxDescriptionLen)
	}

	if m.ProposedName == "" {
		r.addError("proposedName", "missing required field")
	}

	if m.ManifestVersion == "" {
		r.addError("manifestVersion", "missing required field")
	}

	if m.Source.Shasum == "" {
		r.addError("source.shasum", "missing required field")
	}

	if m.Source.Location.NPM.FilePath == "" {
		r.addError("source.location.npm.filePath", "missing required field")
	}

	if m.Source.Location.NPM.PackageName == "" {
		r.addError("source.location.npm.packageName", "missing required field")
	}
}

func checkVersion(m *Manifest, r *Result) {
	if m.Version == "" {
		return
	}

	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		r.addError("version", "%q is not a valid semantic version: %v", m.Version, err)
	}
}

// checkBundle verifies the referenced bundle exists and its checksum matches
// source.shasum.
func checkBundle(dir string, m *Manifest, r *Result) {
	filePath := m.Source.Location.NPM.FilePath
	if filePath == "" {
		return
	}

	bundlePath := filepath.Join(dir, filepath.FromSlash(filePath))

	data, err := os.ReadFile(bundlePath)
	if err != nil {
		r.addError("source.location.npm.filePath", "bundle not readable at %q: %v", bundlePath, err)
		return
	}

	if m.Source.Shasum == "" {
		return
	}

	if got := Shasum(data); got != m.Source.Shasum {
		r.addError("source.shasum", "checksum mismatch: manifest has %q, bundle is %q", m.Source.Shasum, got)
	}
}

// checkPackageJSON cross-checks the manifest against package.json metadata.
// A missing package.json is a warning; the manifest may be validated in
// isolation.
func checkPackageJSON(dir string, m *Manifest, r *Result) {
	pkg, err := project.ReadPackageJSON(dir)
	if err != nil {
		r.addWarning("package.json", "not available for cross-check: %v", err)
		return
	}

	if m.Version != "" && pkg.Version != "" && m.Version != pkg.Version {
		r.addError("version", "manifest version %q does not match package.json version %q", m.Version, pkg.Version)
	}

	name := m.Source.Location.NPM.PackageName
	if name != "" && pkg.Name != "" && name != pkg.Name {
		r.addError("source.location.npm.packageName", "manifest package %q does not match package.json name %q", name, pkg.Name)
	}
}
