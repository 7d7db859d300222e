// Package projectconfig loads the kernel's optional on-disk defaults
// file: slice/sufficiency policy selection and service bind settings a
// deployment wants fixed across restarts, supplementing the
// environment-variable configuration cmd/graphkernel-service reads at
// startup. Unlike the env-parsed settings, this file is optional and
// versioned alongside a repo, the way the teacher's own project config
// is meant to be checked in.
package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

const DefaultPath = ".graphkernel/config.yaml"

// Config is the on-disk shape of a kernel deployment's defaults.
type Config struct {
	Slice       SliceDefaults       `yaml:"slice"`
	Sufficiency SufficiencyDefaults `yaml:"sufficiency"`
	Service     ServiceDefaults     `yaml:"service"`
}

// SliceDefaults selects which SlicePolicy preset graphkernel-cli's slice
// commands use when no --policy flag is given. The service does not
// read it.
type SliceDefaults struct {
	Policy string `yaml:"policy"` // one of "default", "lenient", "strict"
}

// SufficiencyDefaults selects which sufficiency.Policy preset gates a
// deployment's bundles.
type SufficiencyDefaults struct {
	Profile string `yaml:"profile"` // one of "default", "lenient", "strict"
}

// ServiceDefaults mirrors the subset of cmd/graphkernel-service's env
// settings a deployment may instead want to pin in a checked-in file.
type ServiceDefaults struct {
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	VerifierCacheCapacity int    `yaml:"verifier_cache_capacity"`
}

// Load reads and parses path. A missing file is not an error when
// allowMissing is true, returning a zero Config so callers fall back to
// their own defaults.
func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read project config: %w", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, fmt.Errorf("parse project config: %w", err)
	}
	configuration.normalize()
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.Slice.Policy = strings.ToLower(strings.TrimSpace(configuration.Slice.Policy))
	configuration.Sufficiency.Profile = strings.ToLower(strings.TrimSpace(configuration.Sufficiency.Profile))
	configuration.Service.Host = strings.TrimSpace(configuration.Service.Host)
	configuration.Service.Port = strings.TrimSpace(configuration.Service.Port)
}
