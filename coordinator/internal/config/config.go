package config

import (
	"fmt"
	"os"

	"github.com/avfarm/common/models"
	"gopkg.in/yaml.v3"
)

// LoadCoordinatorConfig reads and parses the coordinator's static bootstrap
// configuration file.
func LoadCoordinatorConfig(path string) (*models.CoordinatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.CoordinatorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}
