package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"hvac-insight/internal/analytics/domain/rules"
)

// LoadThresholdProfile reads a YAML threshold profile. Fields missing from
// the file keep their defaults. An empty path yields the defaults.
func LoadThresholdProfile(path string) (rules.Profile, error) {
	profile := rules.NewProfile(rules.Defaults())
	if path == "" {
		return profile, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return profile, fmt.Errorf("thresholds: %w", err)
	}
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return profile, fmt.Errorf("thresholds: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return profile, err
	}
	return profile, nil
}

// SaveThresholdProfile writes a profile back as YAML.
func SaveThresholdProfile(path string, profile rules.Profile) error {
	data, err := yaml.Marshal(profile)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
