// Package profile loads the syncable-profile and capability fixture that
// scopes which records an instance will exchange with a peer.
package profile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile names a syncable record universe and the capabilities this
// instance advertises to peers during session negotiation.
type Profile struct {
	Name         string   `yaml:"name"`
	Capabilities []string `yaml:"capabilities"`
}

// LoadProfile reads and parses a profile fixture from disk.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile %s: %w", path, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("profile %s: name is required", path)
	}
	return &p, nil
}
