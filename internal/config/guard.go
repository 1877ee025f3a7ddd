package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/sessionvault/internal/pagestore"
)

// GuardFile is the YAML form of the extraction guard.
//
//	excluded_hosts: [whatsapp.com]
//	heavy_store_hosts: [whatsapp.com]
//	heavy_stores: [msgs, message, chat, model-storage]
type GuardFile struct {
	ExcludedHosts   []string `yaml:"excluded_hosts"`
	HeavyStoreHosts []string `yaml:"heavy_store_hosts"`
	HeavyStores     []string `yaml:"heavy_stores"`
}

// LoadGuard reads and validates a guard YAML file. Returns an
// os.ErrNotExist-wrapped error if the file is absent.
func LoadGuard(path string) (pagestore.Guard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pagestore.Guard{}, fmt.Errorf("guard config: %w", err)
	}
	var f GuardFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return pagestore.Guard{}, fmt.Errorf("guard config: %w", err)
	}
	lists := map[string][]string{
		"excluded_hosts":    f.ExcludedHosts,
		"heavy_store_hosts": f.HeavyStoreHosts,
		"heavy_stores":      f.HeavyStores,
	}
	for name, list := range lists {
		for i, v := range list {
			if strings.TrimSpace(v) == "" {
				return pagestore.Guard{}, fmt.Errorf("guard config: %s[%d] is empty", name, i)
			}
		}
	}
	if len(f.HeavyStores) > 0 && len(f.HeavyStoreHosts) == 0 {
		return pagestore.Guard{}, fmt.Errorf("guard config: heavy_stores given without heavy_store_hosts")
	}
	return pagestore.Guard{
		ExcludedHosts:   f.ExcludedHosts,
		HeavyStoreHosts: f.HeavyStoreHosts,
		HeavyStores:     f.HeavyStores,
	}, nil
}

// Guard returns the guard from GuardFile, or the built-in default when
// the file does not exist.
func (c *Config) Guard() (pagestore.Guard, error) {
	if c.GuardFile == "" {
		return pagestore.DefaultGuard(), nil
	}
	g, err := LoadGuard(c.GuardFile)
	if errors.Is(err, os.ErrNotExist) {
		return pagestore.DefaultGuard(), nil
	}
	return g, err
}
