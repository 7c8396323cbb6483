package executor

import (
	"context"
	stderr "errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/sharedriver/pkg/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestLocal_Execute(t *testing.T) {
	requireShell(t)
	local := NewLocal("")
	ctx := context.Background()

	tests := []struct {
		name     string
		script   string
		opts     Options
		wantOut  string
		wantCode int
		wantErr  bool
	}{
		{name: "stdout", script: "echo hello", wantOut: "hello\n"},
		{name: "failing exit", script: "echo oops >&2; exit 3", wantCode: 3, wantErr: true},
		{name: "allowed exit", script: "exit 3", opts: Options{CheckExitCode: []int{0, 3}}, wantCode: 3},
		{name: "zero not allowed", script: "true", opts: Options{CheckExitCode: []int{1}}, wantErr: true},
		{name: "stdin", script: "cat", opts: Options{Stdin: "payload"}, wantOut: "payload"},
		{name: "env", script: "printf %s \"$SHARE_ID\"", opts: Options{Env: map[string]string{"SHARE_ID": "s-1"}}, wantOut: "s-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := local(ctx, "sh", []string{"-c", tt.script}, tt.opts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsProcessExecutionError(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCode, result.ExitCode)
			if tt.wantOut != "" {
				assert.Equal(t, tt.wantOut, result.Stdout)
			}
		})
	}
}

func TestLocal_FailureCarriesOutput(t *testing.T) {
	requireShell(t)

	_, err := NewLocal("")(context.Background(), "sh", []string{"-c", "echo out; echo busy >&2; exit 2"}, Options{})
	var pe *ProcessExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.ExitCode)
	assert.Equal(t, "out\n", pe.Stdout)
	assert.Equal(t, "busy\n", pe.Stderr)
	assert.True(t, strings.HasPrefix(pe.Cmd, "sh -c"))
}

func TestLocal_MissingBinary(t *testing.T) {
	result, err := NewLocal("")(context.Background(), "/nonexistent/sharedriver-tool", nil, Options{})
	var pe *ProcessExecutionError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, -1, pe.ExitCode)
	assert.Equal(t, -1, result.ExitCode)
}

func TestLocal_RunAsRoot(t *testing.T) {
	requireShell(t)
	if _, err := exec.LookPath("env"); err != nil {
		t.Skip("env not available")
	}

	// env stands in for the root helper so the test needs no privileges
	local := Local{RootHelper: "env HELPER=yes"}
	result, err := local.Execute(context.Background(), "sh", []string{"-c", "printf %s \"$HELPER\""}, Options{RunAsRoot: true})
	require.NoError(t, err)
	assert.Equal(t, "yes", result.Stdout)
}

func TestLocal_BlankRootHelper(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, helper := range []string{"", "   ", "\t"} {
		var err error
		require.NotPanics(t, func() {
			_, err = Local{RootHelper: helper}.Execute(ctx, "true", nil, Options{RunAsRoot: true})
		}, "helper %q", helper)

		// whether sudo exists here or not, the command went through it
		var pe *ProcessExecutionError
		if stderr.As(err, &pe) {
			assert.True(t, strings.HasPrefix(pe.Cmd, DefaultRootHelper+" true"), "cmd = %q", pe.Cmd)
		}
	}
}

func TestLocal_ContextCanceled(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal("")(ctx, "sh", []string{"-c", "sleep 5"}, Options{})
	assert.True(t, errors.IsCanceled(err))
	assert.False(t, IsProcessExecutionError(err))
}
