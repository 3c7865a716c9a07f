package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/spf13/afero"

	"pipesh.dev/pipesh/core/job"
	"pipesh.dev/pipesh/core/shell"
)

// ErrNotFound is the error resulting if a path search failed to find an
// executable file.
var ErrNotFound = exec.ErrNotFound

// Executor launches parsed pipelines as wired-up process graphs.
type Executor struct {
	// Fs opens redirection targets.
	Fs afero.Fs
	// Runner creates the child processes.
	Runner Runner
	// Jobs receives background registrations and child exits.
	Jobs *job.Context

	// Stdin, Stdout and Stderr are inherited by stages with no
	// redirection or pipe on the corresponding stream.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Result is the outcome of one pipeline run.
type Result struct {
	// Background reports that the pipeline was registered as a job
	// instead of being awaited.
	Background bool
	// ExitCode is the final stage's exit code. Foreground only.
	ExitCode int
	// Job is the registered job. Background only.
	Job *job.Job
}

// Run launches every stage of the pipeline, wiring stage i's stdout to
// stage i+1's stdin and applying the first stage's input and the last
// stage's output redirections.
//
// Foreground pipelines block until the final stage exits and report
// only its exit code; earlier stages are reaped but not inspected.
// Background pipelines are registered with the job table and Run
// returns at once. If any stage fails to launch, every stage already
// running is killed, every file this call opened is closed, and no job
// is registered. Cancelling ctx while a foreground pipeline is being
// awaited kills the whole pipeline and produces no result.
func (e *Executor) Run(ctx context.Context, pipeline shell.Pipeline) (*Result, error) {
	if len(pipeline) == 0 {
		return &Result{}, nil
	}

	var (
		procs    []Proc
		closers  []io.Closer // redirection files, closed on every exit path
		prevRead *os.File    // read end of the previous stage's output pipe
		pgid     int
	)

	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	killAll := func() {
		for _, p := range procs {
			_ = p.Signal(os.Kill)
		}
	}
	closePrev := func() {
		if prevRead != nil {
			prevRead.Close()
			prevRead = nil
		}
	}

	last := len(pipeline) - 1
	for i, cmd := range pipeline {
		if len(cmd.Argv) == 0 {
			continue
		}

		stdin := e.Stdin
		switch {
		case i == 0 && cmd.InPath != "":
			f, err := e.Fs.Open(cmd.InPath)
			if err != nil {
				killAll()
				return nil, fmt.Errorf("redirection error (input): %w", err)
			}
			closers = append(closers, f)
			stdin = f
		case prevRead != nil:
			stdin = prevRead
		}

		stdout := e.Stdout
		var nextRead, pipeWrite *os.File
		switch {
		case i == last && cmd.OutPath != "":
			flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
			if cmd.Append {
				flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
			}
			f, err := e.Fs.OpenFile(cmd.OutPath, flags, 0644)
			if err != nil {
				killAll()
				closePrev()
				return nil, fmt.Errorf("redirection error (output): %w", err)
			}
			closers = append(closers, f)
			stdout = f
		case i != last:
			r, w, err := os.Pipe()
			if err != nil {
				killAll()
				closePrev()
				return nil, err
			}
			nextRead, pipeWrite = r, w
			stdout = w
		}

		proc, err := e.Runner.Start(cmd.Argv, ProcAttr{
			Stdin:  stdin,
			Stdout: stdout,
			Stderr: e.Stderr,
			Pgid:   pgid,
		})
		if err != nil {
			killAll()
			closePrev()
			if pipeWrite != nil {
				pipeWrite.Close()
				nextRead.Close()
			}
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%s: command not found", cmd.Argv[0])
			}
			return nil, fmt.Errorf("failed to execute %s: %w", cmd.Argv[0], err)
		}
		procs = append(procs, proc)
		if pgid == 0 {
			pgid = proc.PID()
		}

		// The child has its own copies of the pipe ends now. Keeping
		// ours open would hold the previous stage's pipe open forever
		// and deadlock downstream readers.
		if pipeWrite != nil {
			pipeWrite.Close()
		}
		closePrev()
		prevRead = nextRead
	}
	closePrev()

	if len(procs) == 0 {
		// Every stage was empty, e.g. a line of bare redirections.
		return &Result{}, nil
	}

	// Background pipelines register before the watchers start: a stage
	// may already have exited, and its exit event must find the job's
	// pids in the table.
	var registered *job.Job
	if pipeline.Background() {
		jobProcs := make([]job.Proc, len(procs))
		for i, p := range procs {
			jobProcs[i] = p
		}
		registered = e.Jobs.Register(jobProcs, pipeline.String())
	}

	// Watchers hand every exit to the reaper. Exits from foreground
	// pipelines match no job there and are dropped.
	for _, p := range procs {
		go func(p Proc) {
			code, _ := p.Wait()
			e.Jobs.Notify(job.Exit{PID: p.PID(), Code: code})
		}(p)
	}

	if registered != nil {
		return &Result{Background: true, Job: registered}, nil
	}

	lastProc := procs[len(procs)-1]
	select {
	case <-ctx.Done():
		killAll()
		return nil, ctx.Err()
	case <-lastProc.Done():
	}
	code, err := lastProc.Wait()
	if err != nil {
		return nil, err
	}
	return &Result{ExitCode: code}, nil
}
