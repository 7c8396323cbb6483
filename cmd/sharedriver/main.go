package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/executor"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/internal/metrics"
	"github.com/objectfs/sharedriver/internal/share/driver"
	"github.com/objectfs/sharedriver/internal/share/stats"
	"github.com/objectfs/sharedriver/pkg/errors"
	"github.com/objectfs/sharedriver/pkg/types"
)

var (
	configFile  string
	verbose     bool
	group       string
	metricsAddr string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if hint := errors.Recommendation(err); hint != "" {
			fmt.Fprintf(os.Stderr, "Hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sharedriver",
		Short: "Share driver toolkit",
		Long: `Inspect share driver configuration and capabilities, and run commands
through the resilient executor, locally or on a storage appliance over SSH.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&group, "group", "g", config.DefaultGroup, "driver option group")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")

	rootCmd.AddCommand(
		configCmd(),
		statsCmd(),
		execCmd(),
		versionCmd(),
	)
	return rootCmd
}

// env is what every command needs: the group-bound configuration, a logger
// and a metrics collector.
type env struct {
	cfg     *config.Configuration
	logger  *zap.Logger
	metrics *metrics.Collector
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg = cfg.ForGroup(group)

	logCfg, err := cfg.Logging()
	if err != nil {
		return nil, err
	}
	if verbose {
		logCfg.Level = "DEBUG"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	metricsCfg, err := cfg.Metrics()
	if err != nil {
		return nil, err
	}
	mc := metrics.ConfigFrom(metricsCfg)
	if metricsAddr != "" {
		mc.Enabled = true
		mc.Address = metricsAddr
	}
	collector, err := metrics.NewCollector(mc, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics collector: %w", err)
	}
	if err := collector.Start(ctx); err != nil {
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, metrics: collector}, nil
}

func (e *env) close() {
	logOperationSummary(e.logger, e.metrics)
	_ = e.metrics.Stop(context.Background())
	_ = e.logger.Sync()
}

// logOperationSummary logs one debug line per driver operation the command
// ran.
func logOperationSummary(logger *zap.Logger, m *metrics.Collector) {
	ops := m.GetMetrics()
	names := make([]string, 0, len(ops))
	for name := range ops {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		op := ops[name]
		logger.Debug("Operation summary",
			zap.String("operation", name),
			zap.Int64("count", op.Count),
			zap.Int64("errors", op.Errors),
			zap.Duration("avg_duration", op.AvgDuration))
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the options resolved for the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			view, err := resolve(e.cfg)
			if err != nil {
				return err
			}
			return writeYAML(cmd, view)
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the options of the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			if err := cfg.ForGroup(group).Validate(); err != nil {
				return fmt.Errorf("group %s: %w", group, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration for group %s is valid\n", group)
			return nil
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}

// groupView is the printable form of a group's resolved options.
type groupView struct {
	Group                   string   `yaml:"group"`
	NetworkConfigGroup      string   `yaml:"network_config_group"`
	NumShellTries           int      `yaml:"num_shell_tries"`
	ShellBackoffUnit        string   `yaml:"shell_backoff_unit"`
	ReservedSharePercentage int      `yaml:"reserved_share_percentage"`
	ShareBackendName        string   `yaml:"share_backend_name"`
	RootHelper              string   `yaml:"root_helper"`
	SSH                     *sshView `yaml:"ssh,omitempty"`
}

type sshView struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password,omitempty"`
	PrivateKey  string `yaml:"private_key,omitempty"`
	ConnTimeout int    `yaml:"conn_timeout"`
	MinPoolConn int    `yaml:"min_pool_conn"`
	MaxPoolConn int    `yaml:"max_pool_conn"`
}

func resolve(cfg *config.Configuration) (groupView, error) {
	opts, err := driver.ResolveExecutorOptions(cfg)
	if err != nil {
		return groupView{}, err
	}

	view := groupView{
		Group:                   cfg.ConfigGroup(),
		NetworkConfigGroup:      cfg.NetworkConfigGroup(),
		NumShellTries:           opts.Driver.NumShellTries,
		ShellBackoffUnit:        opts.Driver.ShellBackoffUnit.String(),
		ReservedSharePercentage: opts.Driver.ReservedSharePercentage,
		ShareBackendName:        opts.Driver.ShareBackendName,
		RootHelper:              opts.Driver.RootHelper,
	}
	if view.ShareBackendName == "" {
		view.ShareBackendName = stats.DefaultBackendName
	}
	if s := opts.SSH; s.Host != "" {
		view.SSH = &sshView{
			Host:        s.Host,
			Port:        s.Port,
			User:        s.User,
			PrivateKey:  s.PrivateKeyPath,
			ConnTimeout: s.ConnTimeout,
			MinPoolConn: s.MinPoolConn,
			MaxPoolConn: s.MaxPoolConn,
		}
		if s.Password != "" {
			view.SSH.Password = "********"
		}
	}
	return view, nil
}

func statsCmd() *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the capability snapshot of the group",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			d, err := driver.New(driver.Params{
				Backend: driver.UnimplementedBackend{},
				Config:  e.cfg,
				Logger:  e.logger,
				Metrics: e.metrics,
			})
			if err != nil {
				return err
			}

			ctx := types.WithRequestContext(cmd.Context(), types.AdminContext())
			s, err := d.GetShareStats(ctx, refresh)
			if err != nil {
				return err
			}
			return writeYAML(cmd, s)
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute the snapshot before printing")
	return cmd
}

func execCmd() *cobra.Command {
	var (
		sshHost   string
		asRoot    bool
		exitCodes []int
		once      bool
	)

	cmd := &cobra.Command{
		Use:   "exec [flags] -- command [args...]",
		Short: "Run a command through the executor",
		Long: `Run a command the way a backend would. Failures are retried with
quadratic backoff up to num_shell_tries times unless --once is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			opts, err := driver.ResolveExecutorOptions(e.cfg)
			if err != nil {
				return err
			}
			if sshHost != "" {
				opts.SSH.Host = sshHost
			}

			exec, closeExec, err := driver.BuildExecutor(cmd.Context(), opts, e.logger, e.metrics)
			if err != nil {
				return err
			}
			defer closeExec()

			run := exec.TryExecute
			if once {
				run = exec.Execute
			}

			ctx := types.WithRequestContext(cmd.Context(), types.AdminContext())
			res, err := run(ctx, args[0], args[1:], executor.Options{
				CheckExitCode: exitCodes,
				RunAsRoot:     asRoot,
			})
			fmt.Fprint(cmd.OutOrStdout(), res.Stdout)
			fmt.Fprint(cmd.ErrOrStderr(), res.Stderr)
			return err
		},
	}

	cmd.Flags().StringVar(&sshHost, "ssh", "", "run on this appliance over SSH instead of ssh_host")
	cmd.Flags().BoolVar(&asRoot, "root", false, "run through the configured root helper")
	cmd.Flags().IntSliceVar(&exitCodes, "allow-exit", nil, "exit codes treated as success (default 0)")
	cmd.Flags().BoolVar(&once, "once", false, "do not retry failures")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sharedriver %s (%s %s)\n", stats.DriverVersion, stats.VendorName, stats.DefaultBackendName)
		},
	}
}

func writeYAML(cmd *cobra.Command, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
