package config

import (
	"errors"
	"io"

	"gopkg.in/yaml.v3"
)

// parseYAML decodes config.yaml into cfg. Unknown keys and duplicate sections
// are rejected.
func parseYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("config file is empty")
		}
		return err
	}
	return nil
}
