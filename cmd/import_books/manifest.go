package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest lists donated books to import. Donor is the email of the person
// credited for every book that names no donor of its own. Cover paths are
// relative to CoversDir, which is itself relative to the manifest.
type Manifest struct {
	Donor     string         `yaml:"donor"`
	CoversDir string         `yaml:"coversDir"`
	Books     []ManifestBook `yaml:"books"`
}

type ManifestBook struct {
	Title  string `yaml:"title"`
	Author string `yaml:"author"`
	Genre  string `yaml:"genre"`
	Cover  string `yaml:"cover"`
	Note   string `yaml:"note"`
	Donor  string `yaml:"donor"`
}

func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(m.Books) == 0 {
		return nil, errors.New("manifest lists no books")
	}
	return &m, nil
}

// donorFor returns the donor email of b, falling back to the manifest's.
func (m *Manifest) donorFor(b ManifestBook) string {
	if d := strings.TrimSpace(b.Donor); d != "" {
		return d
	}
	return strings.TrimSpace(m.Donor)
}

// coverPath resolves the cover of b against the manifest directory.
func (m *Manifest) coverPath(manifestDir string, b ManifestBook) string {
	if filepath.IsAbs(b.Cover) {
		return b.Cover
	}
	return filepath.Join(manifestDir, m.CoversDir, b.Cover)
}
