package cmd

import (
	"fmt"

	"github.com/ChrisMcGann/ionnet/pkg/pipeline"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"
)

// setDefaults registers every key of the default configuration so that environment
// variables such as IONNET_MATCH_WORKERS are picked up by Unmarshal
func setDefaults(v *viper.Viper) error {
	data, err := yaml.Marshal(pipeline.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to encode default config: %w", err)
	}
	var m map[string]interface{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode default config: %w", err)
	}
	setNested(v, "", m)
	return nil
}

func setNested(v *viper.Viper, prefix string, m map[string]interface{}) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := val.(type) {
		case map[string]interface{}:
			setNested(v, key, val)
		case nil:
		default:
			v.SetDefault(key, val)
		}
	}
}

// loadConfig decodes the merged defaults, config file and environment. Every key has
// a default registered by setDefaults, so decoding starts from the zero value.
func loadConfig(v *viper.Viper) (pipeline.Config, error) {
	var cfg pipeline.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// configYAML renders the effective configuration
func configYAML(cfg pipeline.Config) string {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return ""
	}
	return string(data)
}
