package policy

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Set is the on-disk/wire representation of an ordered policy list: a
// version tag plus the policies themselves, in evaluation order.
type Set struct {
	Version  string   `yaml:"version" json:"version"`
	Policies []Policy `yaml:"policies" json:"policies"`
}

// ParseSet parses a YAML byte slice into a Set. It returns an error if the
// input is empty, contains invalid YAML, or is missing the version field.
func ParseSet(data []byte) (*Set, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("empty policy set")
	}

	var set Set
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}
	if set.Version == "" {
		return nil, fmt.Errorf("missing version field")
	}
	return &set, nil
}

// ParseSetFromReader reads r fully and delegates to ParseSet.
func ParseSetFromReader(r io.Reader) (*Set, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy set: %w", err)
	}
	return ParseSet(data)
}
