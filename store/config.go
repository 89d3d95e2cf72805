package store

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds tunables for opening or creating a FileAllocator-backed
// store. FixedPoolSize bounds the in-memory node pool (Component 4).
// EntriesPerNode is loaded and defaulted but not read when a tree is
// built: NewBTree2 derives the fanout from the allocator's block size.
type Config struct {
	Path           string `yaml:"path"`
	EntriesPerNode int    `yaml:"entriesPerNode"`
	FixedPoolSize  int    `yaml:"fixedPoolSize"`
	Fixed          bool   `yaml:"fixed"`
	FixedBlockSize int64  `yaml:"fixedBlockSize"`
}

// DefaultConfig returns sensible defaults for a variable-size heap at
// path: entriesPerNode=128 (the teacher's Order default), a 4096-node
// in-memory cache.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		EntriesPerNode: 128,
		FixedPoolSize:  4096,
	}
}

// LoadConfig reads a Config from a YAML file, filling in zero-valued
// fields from DefaultConfig(path).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.EntriesPerNode <= 0 {
		cfg.EntriesPerNode = 128
	}
	if cfg.FixedPoolSize <= 0 {
		cfg.FixedPoolSize = 4096
	}
	return cfg, nil
}
