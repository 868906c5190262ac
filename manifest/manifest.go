// Package manifest handles svm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in the working directory.
const FileName = "svm.toml"

// Manifest represents an svm.toml project configuration. It supplies
// defaults for the CLI; explicit flags always win.
type Manifest struct {
	Project Project     `toml:"project"`
	Image   ImageConfig `toml:"image"`
	Run     RunConfig   `toml:"run"`

	// Dir is the directory containing the svm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// ImageConfig configures image output and obfuscation.
type ImageConfig struct {
	Output string `toml:"output"`
	Key    string `toml:"key"`
}

// RunConfig configures execution defaults.
type RunConfig struct {
	Verbose bool   `toml:"verbose"`
	Profile string `toml:"profile"`
}

// Load parses an svm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	m.Dir = dir
	return &m, nil
}

// Exists reports whether dir contains an svm.toml.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}
