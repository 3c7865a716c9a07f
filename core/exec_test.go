package core_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipesh.dev/pipesh/core"
	"pipesh.dev/pipesh/core/exectest"
	"pipesh.dev/pipesh/core/job"
	"pipesh.dev/pipesh/core/shell"
)

type executorFixture struct {
	runner *exectest.Runner
	fs     afero.Fs
	jobs   *job.Context
	exec   *core.Executor
	stdout *bytes.Buffer
}

func newExecutorFixture(t *testing.T) *executorFixture {
	t.Helper()

	f := &executorFixture{
		runner: exectest.NewRunner(),
		fs:     afero.NewMemMapFs(),
		jobs:   job.NewContext(io.Discard, nil, nil),
		stdout: &bytes.Buffer{},
	}
	t.Cleanup(func() { f.jobs.Close() })

	f.exec = &core.Executor{
		Fs:     f.fs,
		Runner: f.runner,
		Jobs:   f.jobs,
		Stdin:  bytes.NewReader(nil),
		Stdout: f.stdout,
		Stderr: io.Discard,
	}
	return f
}

func (f *executorFixture) run(t *testing.T, line string) (*core.Result, error) {
	t.Helper()
	return f.exec.Run(context.Background(), shell.ParseLine(line))
}

func TestRunForegroundWaitsOnLastStageOnly(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.ExitsWith("head", 0)

	// gen and sort never exit; only head's status counts.
	resCh := make(chan *core.Result, 1)
	go func() {
		res, err := f.run(t, "gen | sort | head")
		assert.NoError(t, err)
		resCh <- res
	}()

	select {
	case res := <-resCh:
		assert.False(t, res.Background)
		assert.Equal(t, 0, res.ExitCode)
	case <-time.After(time.Second):
		t.Fatal("run blocked on a non-final stage")
	}
	assert.Len(t, f.runner.Started(), 3)
}

func TestRunForegroundReportsLastExitCode(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.ExitsWith("true", 0)
	f.runner.ExitsWith("false", 1)

	res, err := f.run(t, "false")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)

	res, err = f.run(t, "false | true")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode, "non-final failures are not inspected")
}

func TestRunPipelineWiring(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.ExitsWith("a", 0)
	f.runner.ExitsWith("b", 0)
	f.runner.ExitsWith("c", 0)

	_, err := f.run(t, "a | b | c")
	require.NoError(t, err)

	started := f.runner.Started()
	require.Len(t, started, 3)
	a, b, c := started[0], started[1], started[2]

	// Ends of the pipeline inherit the shell's streams.
	assert.Equal(t, f.exec.Stdin, a.Attr.Stdin)
	assert.Equal(t, f.exec.Stdout, c.Attr.Stdout)

	// Interior boundaries are OS pipes, one per boundary.
	assert.IsType(t, (*os.File)(nil), a.Attr.Stdout)
	assert.IsType(t, (*os.File)(nil), b.Attr.Stdin)
	assert.IsType(t, (*os.File)(nil), b.Attr.Stdout)
	assert.IsType(t, (*os.File)(nil), c.Attr.Stdin)
	assert.NotSame(t, a.Attr.Stdout, b.Attr.Stdout)

	// The first stage leads the process group, the rest join it.
	assert.Equal(t, 0, a.Attr.Pgid)
	assert.Equal(t, a.PID(), b.Attr.Pgid)
	assert.Equal(t, a.PID(), c.Attr.Pgid)
}

func TestRunNotFoundAbortsPipeline(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.NotFound("missing")

	res, err := f.run(t, "gen | missing | head")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Equal(t, "missing: command not found", err.Error())

	started := f.runner.Started()
	require.Len(t, started, 1, "nothing after the failing stage launches")
	assert.True(t, started[0].Killed(), "previously launched stages are terminated")
	assert.Empty(t, f.jobs.Jobs(), "no job for a partially launched pipeline")
}

func TestRunNotFoundBackgroundRegistersNoJob(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.NotFound("missing")

	res, err := f.run(t, "gen | missing &")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Empty(t, f.jobs.Jobs())
}

func TestRunStartFailureAbortsPipeline(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.FailWith("broken", errors.New("exec format error"))

	res, err := f.run(t, "gen | broken")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute broken")
	assert.True(t, f.runner.Started()[0].Killed())
}

func TestRunBackgroundRegistersJob(t *testing.T) {
	f := newExecutorFixture(t)

	res, err := f.run(t, "sleep 5 &")
	require.NoError(t, err)
	assert.True(t, res.Background)
	require.NotNil(t, res.Job)
	assert.Equal(t, 1, res.Job.ID)
	assert.Equal(t, "sleep 5", res.Job.Cmdline)
	assert.Equal(t, "running", res.Job.Status())
	require.Len(t, res.Job.PIDs, 1)

	// The watcher reports the exit without any action from the caller.
	f.runner.Started()[0].Exit(0)
	assert.Eventually(t, func() bool {
		return res.Job.Status() == "done (0)"
	}, time.Second, time.Millisecond)
}

func TestRunBackgroundAlreadyExitedStageIsReaped(t *testing.T) {
	f := newExecutorFixture(t)
	// true is dead before Run returns, so its exit event races the
	// registration. The table must still end up at done.
	f.runner.ExitsWith("true", 0)

	res, err := f.run(t, "true &")
	require.NoError(t, err)
	require.NotNil(t, res.Job)

	pid := f.runner.Started()[0].PID()
	_, ok := f.jobs.Lookup(res.Job.ID)
	assert.True(t, ok, "job is in the table when Run returns")
	assert.Eventually(t, func() bool {
		return res.Job.Status() == "done (0)"
	}, time.Second, time.Millisecond)
	assert.Equal(t, "done (0)", res.Job.ProcStatus(pid))
}

func TestRunBackgroundPipelineTracksAllPIDs(t *testing.T) {
	f := newExecutorFixture(t)

	res, err := f.run(t, "gen | filter | sink &")
	require.NoError(t, err)
	require.NotNil(t, res.Job)
	assert.Len(t, res.Job.PIDs, 3)

	started := f.runner.Started()
	assert.Equal(t, started[0].PID(), res.Job.PIDs[0], "group leader is listed first")
}

func TestRunOutputRedirection(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.ExitsWith("echo", 0)
	require.NoError(t, afero.WriteFile(f.fs, "out.txt", []byte("old contents"), 0644))

	_, err := f.run(t, "echo hi > out.txt")
	require.NoError(t, err)

	// Truncate mode discards whatever was there.
	data, err := afero.ReadFile(f.fs, "out.txt")
	require.NoError(t, err)
	assert.Empty(t, data)

	// The stage writes to the file, not the shell's stdout.
	assert.NotEqual(t, f.exec.Stdout, f.runner.Started()[0].Attr.Stdout)
}

func TestRunAppendRedirectionKeepsContents(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.ExitsWith("echo", 0)
	require.NoError(t, afero.WriteFile(f.fs, "all.log", []byte("old contents"), 0644))

	_, err := f.run(t, "echo hi >> all.log")
	require.NoError(t, err)

	data, err := afero.ReadFile(f.fs, "all.log")
	require.NoError(t, err)
	assert.Equal(t, "old contents", string(data))
}

func TestRunInputRedirection(t *testing.T) {
	f := newExecutorFixture(t)
	f.runner.ExitsWith("sort", 0)
	require.NoError(t, afero.WriteFile(f.fs, "data.txt", []byte("b\na\n"), 0644))

	_, err := f.run(t, "sort < data.txt")
	require.NoError(t, err)
	assert.NotEqual(t, f.exec.Stdin, f.runner.Started()[0].Attr.Stdin)
}

func TestRunMissingInputAbortsBeforeLaunch(t *testing.T) {
	f := newExecutorFixture(t)

	res, err := f.run(t, "sort < nope.txt")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirection error (input)")
	assert.Empty(t, f.runner.Started())
}

func TestRunOutputOpenFailureKillsLaunchedStages(t *testing.T) {
	f := newExecutorFixture(t)
	f.exec.Fs = afero.NewReadOnlyFs(f.fs)

	res, err := f.run(t, "gen | sink > out.txt")
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redirection error (output)")

	started := f.runner.Started()
	require.Len(t, started, 1)
	assert.True(t, started[0].Killed())
	assert.Empty(t, f.jobs.Jobs())
}

func TestRunCancellationKillsPipeline(t *testing.T) {
	f := newExecutorFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := f.exec.Run(ctx, shell.ParseLine("sleep 100"))
		errCh <- err
	}()

	assert.Eventually(t, func() bool {
		return len(f.runner.Started()) == 1
	}, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancellation did not unblock the wait")
	}
	assert.True(t, f.runner.Started()[0].Killed())
}

func TestRunEmptyPipeline(t *testing.T) {
	f := newExecutorFixture(t)

	res, err := f.exec.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Background)
	assert.Empty(t, f.runner.Started())
}

func TestRunBareRedirectionLaunchesNothing(t *testing.T) {
	f := newExecutorFixture(t)

	// The stage has no argv, so it is skipped before its redirection
	// is opened.
	res, err := f.run(t, "> out.txt")
	require.NoError(t, err)
	assert.False(t, res.Background)
	assert.Empty(t, f.runner.Started())

	exists, err := afero.Exists(f.fs, "out.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}
