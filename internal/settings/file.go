package settings

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/woozymasta/launcherd/internal/models"
	"gopkg.in/yaml.v3"
)

// FilePersister stores settings as YAML in a single file.
type FilePersister struct {
	path string
}

// NewFilePersister returns a persister for path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// Path returns the settings file location.
func (f *FilePersister) Path() string {
	return f.path
}

// Read decodes the settings file. Fields absent from the file keep their defaults.
func (f *FilePersister) Read() (models.GameSettings, error) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		return models.GameSettings{}, err
	}

	s := models.DefaultSettings()
	if err := yaml.Unmarshal(content, &s); err != nil {
		return models.GameSettings{}, fmt.Errorf("decode %s: %w", f.path, err)
	}

	return s, nil
}

// Write encodes s to a temporary file and renames it over the settings file.
func (f *FilePersister) Write(s models.GameSettings) error {
	content, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, f.path)
}
