package pipeline

import (
	"errors"
	"fmt"

	"github.com/ChrisMcGann/ionnet/pkg/filter"
	"github.com/ChrisMcGann/ionnet/pkg/ionlib"
	"github.com/ChrisMcGann/ionnet/pkg/match"
	"github.com/ChrisMcGann/ionnet/pkg/msms"
	"github.com/ChrisMcGann/ionnet/pkg/refine"
)

// ErrInvalidConfig is wrapped by every configuration error
var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError reports the configuration section that failed validation
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration in %s: %v", e.Field, e.Err)
}

// Unwrap exposes both ErrInvalidConfig and the underlying cause
func (e *ConfigError) Unwrap() []error {
	return []error{ErrInvalidConfig, e.Err}
}

// Config holds the settings of every stage
type Config struct {
	Library   ionlib.Config           `mapstructure:"library" yaml:"library"`
	Filter    filter.MinFeatureConfig `mapstructure:"filter" yaml:"filter"`
	Match     match.Config            `mapstructure:"match" yaml:"match"`
	CheckMSMS bool                    `mapstructure:"check_msms" yaml:"check_msms"`
	MSMS      msms.Config             `mapstructure:"msms" yaml:"msms"`
	Refine    refine.Config           `mapstructure:"refine" yaml:"refine"`
}

// DefaultConfig returns settings that work for a typical positive mode run
func DefaultConfig() Config {
	return Config{
		Library: ionlib.DefaultConfig(),
		Filter: filter.MinFeatureConfig{
			MinHeight:  1000,
			MinSamples: filter.AbsRel{Abs: 1, Rounding: filter.RoundCeil},
		},
		Match:     match.DefaultConfig(),
		CheckMSMS: false,
		MSMS:      msms.DefaultConfig(),
		Refine:    refine.DefaultConfig(),
	}
}

// Validate checks all sections before any work starts
func (c Config) Validate() error {
	if !c.Library.Tolerance.Valid() {
		return &ConfigError{Field: "library.tolerance", Err: fmt.Errorf("m/z tolerance must be positive (abs=%v, ppm=%v)",
			c.Library.Tolerance.Abs, c.Library.Tolerance.PPM)}
	}
	if _, err := ionlib.ParsePolarity(c.Library.Polarity); err != nil {
		return &ConfigError{Field: "library.polarity", Err: err}
	}
	if c.Library.MaxMods < 0 {
		return &ConfigError{Field: "library.max_mods", Err: fmt.Errorf("must be non-negative, got %d", c.Library.MaxMods)}
	}
	if err := c.Filter.Validate(); err != nil {
		return &ConfigError{Field: "filter", Err: err}
	}
	if err := c.Match.Validate(); err != nil {
		return &ConfigError{Field: "match", Err: err}
	}
	if c.CheckMSMS {
		if err := c.MSMS.Validate(); err != nil {
			return &ConfigError{Field: "msms", Err: err}
		}
	}
	if err := c.Refine.Validate(); err != nil {
		return &ConfigError{Field: "refine", Err: err}
	}
	return nil
}

// Catalog returns the modification catalog for the configuration: the default catalog
// merged with the configured catalog file, if any.
func (c Config) Catalog() (*ionlib.Catalog, error) {
	catalog := ionlib.DefaultCatalog()
	if c.Library.CatalogFile == "" {
		return catalog, nil
	}
	custom, err := ionlib.LoadCatalogFile(c.Library.CatalogFile)
	if err != nil {
		return nil, &ConfigError{Field: "library.catalog_file", Err: err}
	}
	catalog.Merge(custom)
	return catalog, nil
}
