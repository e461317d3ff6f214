// Package config loads run settings for breakexfat. Defaults come from
// BREAKEXFAT_* environment variables and can be overridden by a YAML profile.
package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "BREAKEXFAT"

// PatternChoice selects one break pattern and the variant it applies.
type PatternChoice struct {
	Index   int `yaml:"index"`
	Variant int `yaml:"variant"`
}

type Config struct {
	Verbosity Level `envconfig:"VERBOSITY" default:"warning" yaml:"verbosity"`
	// ActiveFAT and ActiveBitmap are nil unless set, so that the copies the
	// volume flags select are kept.
	ActiveFAT    *int `envconfig:"ACTIVE_FAT"    yaml:"activeFat"`
	ActiveBitmap *int `envconfig:"ACTIVE_BITMAP" yaml:"activeBitmap"`
	// All enables every pattern in the catalog.
	All      bool            `ignored:"true" yaml:"all"`
	Patterns []PatternChoice `ignored:"true" yaml:"patterns"`
}

// Load reads the environment, then the profile at `profilePath` if it isn't
// empty. Keys missing from the profile keep their environment values.
func Load(fs afero.Fs, profilePath string) (*Config, error) {
	var c Config
	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	if profilePath == "" {
		return &c, nil
	}

	data, err := afero.ReadFile(fs, profilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("profile %q doesn't exist", profilePath)
		}
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling profile %q: %w", profilePath, err)
	}
	return &c, nil
}
