package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
)

// Read reads a config from the given file. ${VAR} references are expanded from the environment
// before decoding.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", filePath)
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a config from the given reader and specifies where, if applicable, the file
// the reader originated from.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	cfg := Config{ConfigFilePath: originalPath}
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "failed to process Config")
	}
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
