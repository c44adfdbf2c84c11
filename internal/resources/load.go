package resources

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/solatis/qualify/internal/types"
)

// Declaration file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// FormatForPath picks a format from a file extension; anything that is not
// .json is read as YAML.
func FormatForPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// DecodeFile parses a declaration file. Unknown fields are rejected.
func DecodeFile(data []byte, format string) (*types.ResourceFile, error) {
	var file types.ResourceFile
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: decode json: %w", types.ErrValidation, err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: decode yaml: %w", types.ErrValidation, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", types.ErrValidation, format)
	}
	return &file, nil
}

// LoadFile reads and adds a declaration file.
func (m *Manager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	file, err := DecodeFile(data, FormatForPath(path))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := m.AddFile(file); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
