/*
Package executor runs storage appliance management commands and recovers
from their transient failures.

Backends hold an *Executor built around a raw primitive (ExecuteFunc). Two
primitives ship with the module: Local, which runs child processes, and the
pooled SSH runner in the ssh subpackage.

	┌────────────┐   TryExecute   ┌──────────────┐   ExecuteFunc   ┌───────────┐
	│  Backend   │ ─────────────► │   Executor   │ ──────────────► │ primitive │
	└────────────┘                │ retry.Retryer│                 └───────────┘
	                              └──────────────┘

Execute calls the primitive once. TryExecute retries *ProcessExecutionError
failures up to num_shell_tries attempts, sleeping n² backoff units before
retry n:

	attempt 1 ── fail ── sleep 1u ── attempt 2 ── fail ── sleep 4u ── attempt 3

Any other error stops at once. When attempts run out the caller gets a
RETRY_EXHAUSTED error that wraps the last *ProcessExecutionError, and
cancelling the context during a sleep returns OPERATION_CANCELED.

# Usage

	exec, err := executor.New(executor.NewLocal(opts.RootHelper), opts,
		executor.WithLogger(logger), executor.WithMetrics(collector))
	if err != nil {
		return err
	}
	res, err := exec.TryExecute(ctx, "exportfs", []string{"-r"}, executor.Options{RunAsRoot: true})
*/
package executor
