package manifest

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
)

// Load reads the study manifest at path, validates it against the
// embedded schema, and applies defaults. YAML is the native format;
// .json files are accepted for generated manifests.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("study manifest not found: %s", path)
		}
		return nil, fmt.Errorf("read study manifest %s: %w", path, err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromReader is Load over an already-open stream. The path is only
// used to pick the decoder and label errors; it may be empty.
func LoadFromReader(r io.Reader, path string) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read study manifest: %w", err)
	}
	return LoadFromBytes(data, path)
}

// LoadFromBytes decodes, validates, and defaults a manifest document.
//
// Validation runs against the raw document, not the bound struct, so
// fields the Manifest struct does not know about still trip the
// schema's additionalProperties check instead of being dropped.
func LoadFromBytes(data []byte, path string) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("study manifest is empty")
	}

	doc, err := decodeDocument(data, path)
	if err != nil {
		return nil, err
	}
	if err := ValidateRaw(doc); err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, fmt.Errorf("bind study manifest: %w", err)
	}
	m.ApplyDefaults()
	return &m, nil
}

// decodeDocument turns the manifest source into the JSON document the
// validator and the struct binding both consume. Anything that is not
// a .json file goes through the YAML decoder; JSON content still
// parses there since YAML is a superset of it.
func decodeDocument(data []byte, path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON in study manifest %s", path)
		}
		return data, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML in study manifest: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("re-encode study manifest: %w", err)
	}
	return out, nil
}
