package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DriverOptions are the options every share driver consumes from its group.
type DriverOptions struct {
	// NumShellTries is the number of times to attempt flaky shell commands
	NumShellTries int `mapstructure:"num_shell_tries" validate:"gte=1"`

	// ShellBackoffUnit scales the quadratic backoff between attempts
	ShellBackoffUnit time.Duration `mapstructure:"shell_backoff_unit" validate:"gt=0"`

	// ReservedSharePercentage is the percentage of backend capacity reserved
	ReservedSharePercentage int `mapstructure:"reserved_share_percentage" validate:"gte=0,lte=100"`

	// ShareBackendName is the backend name reported in capability stats
	ShareBackendName string `mapstructure:"share_backend_name"`

	// NetworkConfigGroup names the group holding network options; empty
	// means the driver's own group
	NetworkConfigGroup string `mapstructure:"network_config_group"`

	// RootHelper prefixes commands run with RunAsRoot
	RootHelper string `mapstructure:"root_helper" validate:"notblank"`
}

// SSHOptions configure the pooled SSH channel to a storage appliance.
type SSHOptions struct {
	// ConnTimeout is the SSH connection timeout in seconds
	ConnTimeout int `mapstructure:"ssh_conn_timeout" validate:"gte=1"`

	// MinPoolConn is the number of connections opened eagerly
	MinPoolConn int `mapstructure:"ssh_min_pool_conn" validate:"gte=0"`

	// MaxPoolConn caps the number of open connections
	MaxPoolConn int `mapstructure:"ssh_max_pool_conn" validate:"gte=1,gtefield=MinPoolConn"`

	Host           string `mapstructure:"ssh_host"`
	Port           int    `mapstructure:"ssh_port" validate:"gte=1,lte=65535"`
	User           string `mapstructure:"ssh_user"`
	Password       string `mapstructure:"ssh_password"`
	PrivateKeyPath string `mapstructure:"ssh_private_key"`

	// HostKey is an authorized_keys formatted public key the appliance must
	// present; empty disables host key checking
	HostKey string `mapstructure:"ssh_host_key"`
}

// ConnTimeoutDuration returns ConnTimeout as a time.Duration.
func (o SSHOptions) ConnTimeoutDuration() time.Duration {
	return time.Duration(o.ConnTimeout) * time.Second
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json console"`
}

// MetricsConfig controls the Prometheus collector.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Address   string `mapstructure:"address"`
	Path      string `mapstructure:"path" validate:"required,startswith=/"`
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// CircuitBreakerConfig represents circuit breaker settings for appliance
// connections.
type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=1"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// DefaultDriverOptions returns the built-in driver option defaults.
func DefaultDriverOptions() DriverOptions {
	return DriverOptions{
		NumShellTries:           3,
		ShellBackoffUnit:        time.Second,
		ReservedSharePercentage: 0,
		RootHelper:              "sudo",
	}
}

// DefaultSSHOptions returns the built-in SSH option defaults.
func DefaultSSHOptions() SSHOptions {
	return SSHOptions{
		ConnTimeout: 60,
		MinPoolConn: 1,
		MaxPoolConn: 10,
		Port:        22,
	}
}

func applyServiceDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "json")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.address", ":9464")
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "sharedriver")
	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.timeout", 60*time.Second)
}

// DriverOptions resolves the driver options for the bound group.
func (c *Configuration) DriverOptions() (DriverOptions, error) {
	opts := DefaultDriverOptions()
	if err := c.decodeGroup(&opts); err != nil {
		return DriverOptions{}, err
	}
	return opts, nil
}

// SSHOptions resolves the SSH options for the bound group.
func (c *Configuration) SSHOptions() (SSHOptions, error) {
	opts := DefaultSSHOptions()
	if err := c.decodeGroup(&opts); err != nil {
		return SSHOptions{}, err
	}
	return opts, nil
}

// Logging returns the logging section.
func (c *Configuration) Logging() (LoggingConfig, error) {
	var cfg LoggingConfig
	if err := c.decodeSection("logging", &cfg); err != nil {
		return LoggingConfig{}, err
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	return cfg, nil
}

// Metrics returns the metrics section.
func (c *Configuration) Metrics() (MetricsConfig, error) {
	var cfg MetricsConfig
	if err := c.decodeSection("metrics", &cfg); err != nil {
		return MetricsConfig{}, err
	}
	return cfg, nil
}

// CircuitBreaker returns the circuit_breaker section.
func (c *Configuration) CircuitBreaker() (CircuitBreakerConfig, error) {
	var cfg CircuitBreakerConfig
	if err := c.decodeSection("circuit_breaker", &cfg); err != nil {
		return CircuitBreakerConfig{}, err
	}
	return cfg, nil
}

// decodeGroup overlays every option of out found through SafeGet onto the
// defaults already in out, then validates it.
func (c *Configuration) decodeGroup(out interface{}) error {
	found := make(map[string]interface{})
	for _, key := range optionKeys(out) {
		if val, ok := c.SafeGet(key); ok {
			found[key] = val
		}
	}

	if err := decode(found, out); err != nil {
		return fmt.Errorf("group %s: %w", c.group, err)
	}
	if err := validateStruct(out); err != nil {
		return fmt.Errorf("group %s: %w", c.group, err)
	}
	return nil
}

func (c *Configuration) decodeSection(section string, out interface{}) error {
	settings := make(map[string]interface{})
	for _, key := range optionKeys(out) {
		settings[key] = c.v.Get(section + "." + key)
	}
	if err := decode(settings, out); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	if err := validateStruct(out); err != nil {
		return fmt.Errorf("%s: %w", section, err)
	}
	return nil
}

func decode(input map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("failed to decode options: %w", err)
	}
	return nil
}

// optionKeys lists the mapstructure keys of the struct out points to.
func optionKeys(out interface{}) []string {
	t := reflect.TypeOf(out)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	keys := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if name := strings.Split(tag, ",")[0]; name != "" && name != "-" {
			keys = append(keys, name)
		}
	}
	return keys
}
