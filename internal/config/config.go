package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models missiondir.yml. The store section is the configuration
// surface the deployment collaborator injects: a logical table name and a
// primary-key attribute name. Environment values (MISSIONDIR_TABLE_NAME,
// MISSIONDIR_PRIMARY_KEY) override the file on the serve path.
type Config struct {
	Store struct {
		Table      string `yaml:"table"`
		PrimaryKey string `yaml:"primary_key"`
	} `yaml:"store"`
	Server struct {
		PersonnelBasePath string `yaml:"personnel_base_path"`
		AdminBasePath     string `yaml:"admin_base_path"`
	} `yaml:"server"`
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !identPattern.MatchString(c.Store.Table) {
		return fmt.Errorf("config.store.table %q is not a valid identifier", c.Store.Table)
	}
	if !identPattern.MatchString(c.Store.PrimaryKey) {
		return fmt.Errorf("config.store.primary_key %q is not a valid identifier", c.Store.PrimaryKey)
	}
	for _, p := range []string{c.Server.PersonnelBasePath, c.Server.AdminBasePath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("base path %q must start with /", p)
		}
	}
	if c.Server.PersonnelBasePath == c.Server.AdminBasePath {
		return fmt.Errorf("personnel and admin base paths must differ")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "missiondir.yml")
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	cfg.Store.Table = "missions"
	cfg.Store.PrimaryKey = "pk"
	cfg.Server.PersonnelBasePath = "/personnel/v1"
	cfg.Server.AdminBasePath = "/admin/v1"
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing
// fields fall back to defaults before validation.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = "missions"
	}
	if cfg.Store.PrimaryKey == "" {
		cfg.Store.PrimaryKey = "pk"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
