// Package manifest models snap.manifest.json and checks it for consistency
// against the built bundle and package.json metadata.
package manifest

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest file name at the project root.
const FileName = "snap.manifest.json"

// Manifest is the typed view of snap.manifest.json.
type Manifest struct {
	Version            string         `json:"version"`
	Description        string         `json:"description"`
	ProposedName       string         `json:"proposedName"`
	Repository         *Repository    `json:"repository,omitempty"`
	Source             Source         `json:"source"`
	InitialPermissions map[string]any `json:"initialPermissions"`
	ManifestVersion    string         `json:"manifestVersion"`
}

// Repository identifies the source repository of the snap.
type Repository struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Source describes where the bundle lives and how to verify it.
type Source struct {
	Shasum   string   `json:"shasum"`
	Location Location `json:"location"`
}

// Location wraps the supported publication targets.
type Location struct {
	NPM NPMLocation `json:"npm"`
}

// NPMLocation locates the bundle within a published npm package.
type NPMLocation struct {
	FilePath    string `json:"filePath"`
	IconPath    string `json:"iconPath,omitempty"`
	PackageName string `json:"packageName"`
	Registry    string `json:"registry,omitempty"`
}

// Load reads snap.manifest.json from dir and returns both the typed view
// and the raw document. The raw form preserves unknown fields for rewriting.
func Load(dir string) (*Manifest, map[string]any, error) {
	path := filepath.Join(dir, FileName)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return &m, raw, nil
}

// Shasum computes the base64-encoded SHA-256 checksum recorded in
// source.shasum for a bundle.
func Shasum(bundle []byte) string {
	sum := sha256.Sum256(bundle)

	return base64.StdEncoding.EncodeToString(sum[:])
}

// Serialize renders a raw manifest document as indented JSON with a
// trailing newline, the on-disk format.
func Serialize(raw map[string]any) ([]byte, error) {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}

	return append(data, '\n'), nil
}
