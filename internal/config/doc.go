/*
Package config provides the configuration object share drivers are built from.

Options are organized in groups. Each driver instance is bound to one group
(its backend section) and falls back to the DEFAULT group, then to compiled-in
defaults:

	┌─────────────────────────────────────────────┐
	│        Environment Variables                │ ← Highest Priority
	│    (SHAREDRIVER_<GROUP>_<OPTION>)          │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Driver group (e.g. generic1)        │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│              DEFAULT group                  │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values                    │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Recognized options

Driver options (DriverOptions):

	num_shell_tries            int, default 3, must be >= 1
	shell_backoff_unit         duration, default 1s
	reserved_share_percentage  int, default 0
	share_backend_name         string, default unset
	network_config_group       string, default unset (driver's own group)
	root_helper                string, default "sudo"

SSH options (SSHOptions):

	ssh_conn_timeout   int seconds, default 60
	ssh_min_pool_conn  int, default 1
	ssh_max_pool_conn  int, default 10
	ssh_host, ssh_port, ssh_user, ssh_password, ssh_private_key, ssh_host_key

Service sections sit at the top level: logging, metrics, circuit_breaker.

Files are read with viper, option groups are decoded with mapstructure and
checked with go-playground/validator struct tags. SaveToFile writes the
merged settings back as YAML.

# Usage

	cfg, err := config.Load("/etc/sharedriver/sharedriver.yaml")
	if err != nil {
		return err
	}
	backend := cfg.ForGroup("generic1")
	opts, err := backend.DriverOptions()
*/
package config
