package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
)

// Read reads a config from the given file, expanding ${VAR} references from the environment.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf))
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader) (*Config, error) {
	cfg := Config{ConfigFilePath: originalPath}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode Config from json")
	}
	cfg.resolvePaths()
	if err := cfg.Ensure(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths makes label_path relative to the config file.
func (c *Config) resolvePaths() {
	if c.ConfigFilePath == "" || c.Pipeline.LabelPath == "" || filepath.IsAbs(c.Pipeline.LabelPath) {
		return
	}
	c.Pipeline.LabelPath = filepath.Join(filepath.Dir(c.ConfigFilePath), c.Pipeline.LabelPath)
}
