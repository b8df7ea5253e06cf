package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/signalforge/signalforge/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed scan_defaults.yaml
var DefaultScanConfigYAML []byte

// LoadScanDefaults parses the embedded defaults and overlays the file at path,
// if any. Keys missing from the file keep their embedded value.
func LoadScanDefaults(path string) (models.ScanConfiguration, error) {
	var cfg models.ScanConfiguration
	if err := yaml.Unmarshal(DefaultScanConfigYAML, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing embedded scan defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading scan defaults %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing scan defaults %s: %w", path, err)
		}
	}

	cfg.Normalize()
	return cfg, nil
}
