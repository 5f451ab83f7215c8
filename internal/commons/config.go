package commons

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"kitchenops/internal/config"
)

// LoadConfig reads the whole configuration from a YAML file. It is used instead
// of the environment when CONFIG_FILE is set. ${VAR} references are expanded
// from the environment before parsing so secrets can stay out of the file.
func LoadConfig(path string) (*config.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}
