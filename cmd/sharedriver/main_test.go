package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/sharedriver/internal/metrics"
)

const testConfig = `
DEFAULT:
  num_shell_tries: 2
  shell_backoff_unit: 10ms
generic1:
  share_backend_name: GENERIC1
  network_config_group: net1
  reserved_share_percentage: 5
broken:
  num_shell_tries: 0
logging:
  level: error
  format: json
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sharedriver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "sharedriver 1.0 (Open Source Generic_NFS)\n", out)
}

func TestConfigShow(t *testing.T) {
	path := writeConfig(t)

	out, _, err := run(t, "-c", path, "-g", "generic1", "config", "show")
	require.NoError(t, err)

	var view groupView
	require.NoError(t, yaml.Unmarshal([]byte(out), &view))
	assert.Equal(t, groupView{
		Group:                   "generic1",
		NetworkConfigGroup:      "net1",
		NumShellTries:           2,
		ShellBackoffUnit:        "10ms",
		ReservedSharePercentage: 5,
		ShareBackendName:        "GENERIC1",
		RootHelper:              "sudo",
	}, view)
}

func TestConfigValidate(t *testing.T) {
	path := writeConfig(t)

	out, _, err := run(t, "-c", path, "-g", "generic1", "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "group generic1 is valid")

	_, _, err = run(t, "-c", path, "-g", "broken", "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestStats(t *testing.T) {
	path := writeConfig(t)

	out, _, err := run(t, "-c", path, "-g", "generic1", "stats", "--refresh")
	require.NoError(t, err)

	var s map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &s))
	assert.Equal(t, "GENERIC1", s["share_backend_name"])
	assert.Equal(t, "Open Source", s["vendor_name"])
	assert.Equal(t, "infinite", s["total_capacity_gb"])
	assert.Equal(t, "infinite", s["free_capacity_gb"])
	assert.Equal(t, 5, s["reserved_percentage"])
	assert.Equal(t, false, s["QoS_support"])
}

func TestExec(t *testing.T) {
	path := writeConfig(t)

	tests := []struct {
		name    string
		args    []string
		stdout  string
		wantErr bool
	}{
		{
			name:   "success",
			args:   []string{"exec", "--", "echo", "hello"},
			stdout: "hello\n",
		},
		{
			name:    "failure after retries",
			args:    []string{"exec", "--", "sh", "-c", "echo partial; exit 3"},
			stdout:  "partial\n",
			wantErr: true,
		},
		{
			name:   "allowed exit code",
			args:   []string{"exec", "--allow-exit", "0,3", "--", "sh", "-c", "echo ok; exit 3"},
			stdout: "ok\n",
		},
		{
			name:    "single attempt",
			args:    []string{"exec", "--once", "--", "false"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := run(t, append([]string{"-c", path}, tt.args...)...)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.stdout, out)
		})
	}
}

func TestExec_RequiresCommand(t *testing.T) {
	_, _, err := run(t, "exec")
	assert.Error(t, err)
}

func TestLogOperationSummary(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m, err := metrics.NewCollector(nil, nil)
	require.NoError(t, err)

	m.RecordOperation("get_share_stats", 10*time.Millisecond, true)
	m.RecordOperation("create_share", 20*time.Millisecond, true)
	m.RecordOperation("create_share", 40*time.Millisecond, false)

	logOperationSummary(zap.New(core), m)

	entries := logs.FilterMessage("Operation summary").All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "create_share", first["operation"])
	assert.Equal(t, int64(2), first["count"])
	assert.Equal(t, int64(1), first["errors"])
	assert.Equal(t, 30*time.Millisecond, first["avg_duration"])
	assert.Equal(t, "get_share_stats", entries[1].ContextMap()["operation"])

	logOperationSummary(zap.New(core), nil)
	assert.Len(t, logs.FilterMessage("Operation summary").All(), 2)
}
