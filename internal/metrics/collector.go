package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/objectfs/sharedriver/internal/config"
	"github.com/objectfs/sharedriver/internal/logging"
	"github.com/objectfs/sharedriver/pkg/errors"
)

// Collector records executor, driver and network metrics on a private
// Prometheus registry. A nil *Collector is valid and records nothing.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *zap.Logger

	executionCounter  *prometheus.CounterVec
	executionDuration prometheus.Histogram
	retryCounter      prometheus.Counter
	exhaustedCounter  prometheus.Counter
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	networkCounter    *prometheus.CounterVec
	poolConnections   *prometheus.GaugeVec
	errorCounter      *prometheus.CounterVec

	operations map[string]*OperationMetrics

	server *http.Server
}

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Address   string `yaml:"address"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// ConfigFrom converts the metrics section of the service configuration.
func ConfigFrom(cfg config.MetricsConfig) *Config {
	return &Config{
		Enabled:   cfg.Enabled,
		Address:   cfg.Address,
		Path:      cfg.Path,
		Namespace: cfg.Namespace,
	}
}

// OperationMetrics tracks metrics for a specific driver operation
type OperationMetrics struct {
	Count         int64         `json:"count"`
	TotalDuration time.Duration `json:"total_duration"`
	Errors        int64         `json:"errors"`
	LastOperation time.Time     `json:"last_operation"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// NewCollector creates a new metrics collector
func NewCollector(cfg *Config, logger *zap.Logger) (*Collector, error) {
	if cfg == nil {
		cfg = &Config{
			Enabled:   true,
			Address:   ":9464",
			Path:      "/metrics",
			Namespace: "sharedriver",
		}
	}
	logger = logging.OrNop(logger)

	if !cfg.Enabled {
		return &Collector{config: cfg, logger: logger}, nil
	}

	c := &Collector{
		config:     cfg,
		registry:   prometheus.NewRegistry(),
		logger:     logger.Named("metrics"),
		operations: make(map[string]*OperationMetrics),
	}
	c.initMetrics()

	if err := c.registerMetrics(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to register metrics")
	}
	return c, nil
}

func (c *Collector) enabled() bool {
	return c != nil && c.config != nil && c.config.Enabled
}

// Registry returns the private registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	if !c.enabled() {
		return nil
	}
	return c.registry
}

// Handler returns the HTTP handler exposing the registry.
func (c *Collector) Handler() http.Handler {
	if !c.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Start serves the metrics endpoint in the background until Stop.
func (c *Collector) Start(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, c.Handler())

	c.server = &http.Server{
		Addr:              c.config.Address,
		Handler:           mux,
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.logger.Error("Metrics server error", zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	c.logger.Info("Serving metrics",
		zap.String("address", c.config.Address),
		zap.String("path", c.config.Path))
	return nil
}

// Stop stops the metrics server
func (c *Collector) Stop(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}

// RecordExecution records one call of the raw execution primitive.
func (c *Collector) RecordExecution(duration time.Duration, err error) {
	if !c.enabled() {
		return
	}
	c.executionCounter.With(prometheus.Labels{"status": status(err == nil)}).Inc()
	c.executionDuration.Observe(duration.Seconds())
	if err != nil {
		c.RecordError("execute", err)
	}
}

// RecordRetry records a retry of a transiently failed execution.
func (c *Collector) RecordRetry() {
	if !c.enabled() {
		return
	}
	c.retryCounter.Inc()
}

// RecordRetryExhausted records an execution that ran out of attempts.
func (c *Collector) RecordRetryExhausted() {
	if !c.enabled() {
		return
	}
	c.exhaustedCounter.Inc()
}

// RecordOperation records a driver operation with its timing and outcome.
func (c *Collector) RecordOperation(operation string, duration time.Duration, success bool) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	m, exists := c.operations[operation]
	if !exists {
		m = &OperationMetrics{}
		c.operations[operation] = m
	}
	m.Count++
	m.TotalDuration += duration
	if !success {
		m.Errors++
	}
	m.LastOperation = time.Now()
	m.AvgDuration = time.Duration(int64(m.TotalDuration) / m.Count)
	c.mu.Unlock()

	c.operationCounter.With(prometheus.Labels{
		"operation": operation,
		"status":    status(success),
	}).Inc()
	c.operationDuration.With(prometheus.Labels{
		"operation": operation,
	}).Observe(duration.Seconds())
}

// RecordNetworkCall records a call forwarded to the network allocation
// service.
func (c *Collector) RecordNetworkCall(call string, success bool) {
	if !c.enabled() {
		return
	}
	c.networkCounter.With(prometheus.Labels{
		"call":   call,
		"status": status(success),
	}).Inc()
}

// UpdatePoolConnections sets the number of open SSH connections to host.
func (c *Collector) UpdatePoolConnections(host string, open int) {
	if !c.enabled() {
		return
	}
	c.poolConnections.With(prometheus.Labels{"host": host}).Set(float64(open))
}

// RecordError records an error under its category.
func (c *Collector) RecordError(operation string, err error) {
	if !c.enabled() || err == nil {
		return
	}
	c.errorCounter.With(prometheus.Labels{
		"operation": operation,
		"category":  classifyError(err),
	}).Inc()
}

// GetMetrics returns a copy of the per-operation tracking.
func (c *Collector) GetMetrics() map[string]OperationMetrics {
	result := make(map[string]OperationMetrics)
	if !c.enabled() {
		return result
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for k, v := range c.operations {
		result[k] = *v
	}
	return result
}

func (c *Collector) initMetrics() {
	ns, sub := c.config.Namespace, c.config.Subsystem

	c.executionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "executions_total",
			Help:      "Total number of raw command executions",
		},
		[]string{"status"},
	)

	c.executionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "execution_duration_seconds",
			Help:      "Duration of raw command executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
		},
	)

	c.retryCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "execution_retries_total",
			Help:      "Total number of retries after transient execution failures",
		},
	)

	c.exhaustedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "execution_retries_exhausted_total",
			Help:      "Total number of executions that exhausted their attempts",
		},
	)

	c.operationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "driver_operations_total",
			Help:      "Total number of driver operations",
		},
		[]string{"operation", "status"},
	)

	c.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "driver_operation_duration_seconds",
			Help:      "Duration of driver operations in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"operation"},
	)

	c.networkCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "network_calls_total",
			Help:      "Total number of calls to the network allocation service",
		},
		[]string{"call", "status"},
	)

	c.poolConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "ssh_pool_connections",
			Help:      "Number of open SSH connections per appliance",
		},
		[]string{"host"},
	)

	c.errorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "errors_total",
			Help:      "Total number of errors",
		},
		[]string{"operation", "category"},
	)
}

func (c *Collector) registerMetrics() error {
	metrics := []prometheus.Collector{
		c.executionCounter,
		c.executionDuration,
		c.retryCounter,
		c.exhaustedCounter,
		c.operationCounter,
		c.operationDuration,
		c.networkCounter,
		c.poolConnections,
		c.errorCounter,
	}

	for _, metric := range metrics {
		if err := c.registry.Register(metric); err != nil {
			return err
		}
	}
	return nil
}

func classifyError(err error) string {
	if code := errors.CodeOf(err); code != errors.ErrCodeUnknownError {
		return string(errors.GetCategory(code))
	}
	return "other"
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
