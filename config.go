package blitzkv

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default option values, per spec.md §6's recognized-options table.
const (
	DefaultPageSize      uint32  = 4096
	DefaultCacheCapacity int     = 50
	DefaultDecayRate     float64 = 0.2
)

// Config holds every BlitzKV option a caller can set. A zero-valued field
// takes its documented default.
type Config struct {
	PageSize      uint32  `yaml:"page_size"`
	CacheCapacity int     `yaml:"cache_capacity"`
	HotThreshold  uint32  `yaml:"hot_threshold"`
	DecayRate     float64 `yaml:"decay_rate"`
	DirectIO      bool    `yaml:"direct_io"`
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.DecayRate == 0 {
		c.DecayRate = DefaultDecayRate
	}
	return c
}

// LoadConfigFile reads a YAML file recognizing Config's fields
// (page_size, cache_capacity, hot_threshold, decay_rate, direct_io).
func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("blitzkv: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("blitzkv: parse config %s: %w", path, err)
	}
	return cfg, nil
}
