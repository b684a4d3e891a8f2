package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error code reported when an input file cannot be read or parsed.
const ErrCodeInput = "OPTIFORGE_INPUT"

// loadDocument returns the file at path as JSON. Files ending in .yaml or
// .yml are converted; anything else is passed through byte for byte so
// validation sees exactly what was written.
func loadDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		out, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("convert %s to json: %w", path, err)
		}
		return out, nil
	default:
		return raw, nil
	}
}
