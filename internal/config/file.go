package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk layout. The pool settings live under a "pool" key
// so the file can grow other sections without breaking existing ones.
type fileConfig struct {
	Pool PoolConfig `yaml:"pool"`
}

// LoadFile reads a YAML pool configuration from path. Fields missing from the
// file keep their DefaultPoolConfig values. Environment overrides are applied
// on top and the result is validated.
//
// Example:
//
//	pool:
//	  core_workers: 2
//	  max_workers: 16
//	  keep_alive: 30s
//	  order: lifo
func LoadFile(path string) (PoolConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return PoolConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return ApplyEnv(cfg)
}

// Parse decodes a YAML pool configuration over the defaults. Unknown keys are
// rejected. The result is not validated.
func Parse(data []byte) (PoolConfig, error) {
	fc := fileConfig{Pool: DefaultPoolConfig()}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		// An empty document leaves the defaults in place
		if errors.Is(err, io.EOF) {
			return fc.Pool, nil
		}
		return PoolConfig{}, err
	}
	return fc.Pool, nil
}

// Marshal renders cfg in the same layout LoadFile reads.
func Marshal(cfg PoolConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fileConfig{Pool: cfg}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
