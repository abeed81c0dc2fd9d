// Package project handles snap project inputs: path validation, the
// snap.config.yaml customization hook, and package.json metadata.
package project

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parimoosavi/snaps-monorepo/internal/bundler"
	"github.com/parimoosavi/snaps-monorepo/internal/maputil"
)

// DefaultOutfileName is the bundle file name used when none is configured.
const DefaultOutfileName = "bundle.js"

// ConfigFileName is the per-project bundler customization hook.
const ConfigFileName = "snap.config.yaml"

// ValidateOutfileName checks that name is a legal bundle file name: a bare
// file name (no separators) with a .js extension and a non-empty stem.
func ValidateOutfileName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidOutfileName)
	}

	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q must not contain path separators", ErrInvalidOutfileName, name)
	}

	if !strings.HasSuffix(name, ".js") || name == ".js" {
		return fmt.Errorf("%w: %q must be a .js file name", ErrInvalidOutfileName, name)
	}

	return nil
}

// ValidateFilePath checks that path references an existing regular file.
func ValidateFilePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrSourceNotFound, path, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q is not a regular file", ErrSourceNotFound, path)
	}

	return nil
}

// ValidateDirPath checks that path is an existing directory. When
// createIfMissing is true a missing directory is created (with parents).
func ValidateDirPath(path string, createIfMissing bool) error {
	info, err := os.Stat(path)

	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("%w: %q is not a directory", ErrOutputDirInvalid, path)
		}

		return nil

	case errors.Is(err, os.ErrNotExist):
		if !createIfMissing {
			return fmt.Errorf("%w: %q does not exist", ErrOutputDirInvalid, path)
		}

		if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
			return fmt.Errorf("%w: creating %q: %v", ErrOutputDirInvalid, path, mkErr)
		}

		return nil

	default:
		return fmt.Errorf("%w: %q: %v", ErrOutputDirInvalid, path, err)
	}
}

// SnapConfig is the parsed snap.config.yaml customization hook.
type SnapConfig struct {
	Bundler BundlerConfig `yaml:"bundler"`
}

// BundlerConfig carries bundler option overrides from the project config.
type BundlerConfig struct {
	// StripComments overrides the CLI flag when set.
	StripComments *bool `yaml:"stripComments"`

	// Options are arbitrary passthrough build options, merged over any
	// options supplied on the command line.
	Options map[string]any `yaml:"options"`
}

// LoadSnapConfig reads the snap.config.yaml hook from dir. The second return
// value reports whether a config file was present; a missing file is not an
// error.
func LoadSnapConfig(dir string) (*SnapConfig, bool, error) {
	path := filepath.Join(dir, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}

		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}

	var cfg SnapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &cfg, true, nil
}

// Customizer converts the config hook into a bundler option customizer.
// Returns nil when cfg is nil so callers can pass it straight through.
func (c *SnapConfig) Customizer() bundler.CustomizeFunc {
	if c == nil {
		return nil
	}

	return func(o *bundler.Options) {
		if c.Bundler.StripComments != nil {
			o.StripComments = *c.Bundler.StripComments
		}

		if len(c.Bundler.Options) > 0 {
			o.Extra = maputil.MergeMaps(o.Extra, c.Bundler.Options)
		}
	}
}

// PackageJSON is the subset of package.json fields the manifest
// validator cross-checks.
type PackageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Main    string `json:"main"`
}

// ReadPackageJSON reads and parses package.json from dir.
func ReadPackageJSON(dir string) (*PackageJSON, error) {
	path := filepath.Join(dir, "package.json")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &pkg, nil
}
