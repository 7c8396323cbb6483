package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

// DefaultGroup is the option group consulted when a key is missing from a
// driver's own group.
const DefaultGroup = "DEFAULT"

// EnvPrefix prefixes environment overrides, e.g.
// SHAREDRIVER_DEFAULT_NUM_SHELL_TRIES=5.
const EnvPrefix = "SHAREDRIVER"

// Configuration is the configuration object handed to drivers. It is built
// once at process start and is read-only afterwards.
//
// Options live in named groups (top-level YAML maps). A lookup tries the
// bound group first, then DEFAULT, then the built-in default:
//
//	DEFAULT:
//	  num_shell_tries: 3
//	generic1:
//	  share_backend_name: GENERIC1
//	  network_config_group: net1
//	net1:
//	  network_api_class: neutron
//
// Service-wide sections (logging, metrics, circuit_breaker) are top-level
// keys outside any group.
type Configuration struct {
	v     *viper.Viper
	group string
}

// Load reads configuration from a YAML file and the environment. An empty
// path loads from environment and defaults only.
func Load(configPath string) (*Configuration, error) {
	v := viper.New()
	setupViper(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := New(v, DefaultGroup)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// FromMap builds a configuration from in-memory settings. Keys of the
// outer map are group or section names.
func FromMap(settings map[string]interface{}) (*Configuration, error) {
	v := viper.New()
	setupViper(v)
	if err := v.MergeConfigMap(settings); err != nil {
		return nil, fmt.Errorf("failed to merge settings: %w", err)
	}
	return New(v, DefaultGroup), nil
}

// New wraps an existing viper instance bound to group.
func New(v *viper.Viper, group string) *Configuration {
	if group == "" {
		group = DefaultGroup
	}
	return &Configuration{v: v, group: group}
}

func setupViper(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")
	applyServiceDefaults(v)
}

// ConfigGroup returns the group this configuration is bound to.
func (c *Configuration) ConfigGroup() string {
	return c.group
}

// ForGroup returns a view of the same settings bound to another group.
func (c *Configuration) ForGroup(group string) *Configuration {
	return New(c.v, group)
}

// SafeGet looks key up in the bound group, then in DEFAULT. It reports
// false when neither has it.
func (c *Configuration) SafeGet(key string) (interface{}, bool) {
	for _, group := range c.lookupOrder() {
		path := group + "." + key
		if c.v.IsSet(path) {
			return c.v.Get(path), true
		}
	}
	return nil, false
}

// GetString returns the string value of key, or def when unset.
func (c *Configuration) GetString(key, def string) string {
	if val, ok := c.SafeGet(key); ok && val != nil {
		return fmt.Sprint(val)
	}
	return def
}

func (c *Configuration) lookupOrder() []string {
	if strings.EqualFold(c.group, DefaultGroup) {
		return []string{DefaultGroup}
	}
	return []string{c.group, DefaultGroup}
}

// NetworkConfigGroup returns the group the network allocation service reads
// its options from: network_config_group if set, else the bound group.
func (c *Configuration) NetworkConfigGroup() string {
	if group := c.GetString("network_config_group", ""); group != "" {
		return group
	}
	return c.group
}

// SaveToFile writes all settings to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c.v.AllSettings())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate decodes and validates every option set reachable from the bound
// group.
func (c *Configuration) Validate() error {
	if _, err := c.DriverOptions(); err != nil {
		return err
	}
	if _, err := c.SSHOptions(); err != nil {
		return err
	}
	if _, err := c.Logging(); err != nil {
		return err
	}
	if _, err := c.Metrics(); err != nil {
		return err
	}
	if _, err := c.CircuitBreaker(); err != nil {
		return err
	}
	return nil
}
