package reference

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads reference tables from a YAML file. Sections missing from the file keep
// their default values so a file can override only what changed.
func Load(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference tables: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML reference tables on top of the defaults
func Parse(data []byte) (*Tables, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse reference tables: %w", err)
	}

	defaults := DefaultSpec()
	if spec.OEMs == nil {
		spec.OEMs = defaults.OEMs
	}
	if spec.Partners == nil {
		spec.Partners = defaults.Partners
	}
	if spec.ContractVehicles == nil {
		spec.ContractVehicles = defaults.ContractVehicles
	}
	if spec.Regions == nil {
		spec.Regions = defaults.Regions
	}
	if spec.CustomerOrgs == nil {
		spec.CustomerOrgs = defaults.CustomerOrgs
	}
	if spec.CustomerCategories == nil {
		spec.CustomerCategories = defaults.CustomerCategories
	}
	if spec.GovernmentTags == nil {
		spec.GovernmentTags = defaults.GovernmentTags
	}
	if spec.CommercialMarkers == nil {
		spec.CommercialMarkers = defaults.CommercialMarkers
	}

	tables, err := New(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid reference tables: %w", err)
	}
	return tables, nil
}

// LoadOrDefault loads path when set, otherwise returns the default tables
func LoadOrDefault(path string) (*Tables, error) {
	if path == "" {
		return New(DefaultSpec())
	}
	return Load(path)
}
