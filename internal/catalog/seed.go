package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LoadReference decodes a JSON array of reference medications.
func LoadReference(r io.Reader) ([]ReferenceMedication, error) {
	var refs []ReferenceMedication
	if err := json.NewDecoder(r).Decode(&refs); err != nil {
		return nil, fmt.Errorf("catalog: decode reference list: %w", err)
	}
	return refs, nil
}

// LoadReferenceFile opens and decodes a reference medication file.
func LoadReferenceFile(path string) ([]ReferenceMedication, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open reference list: %w", err)
	}
	defer file.Close()
	return LoadReference(file)
}
