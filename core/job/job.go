// Package job tracks background pipelines for the shell. A job is
// registered once when its pipeline finishes launching and is then only
// ever mutated: ids are never reused and jobs are never evicted, so the
// table grows for the life of the shell. That retention is a deliberate
// policy, not an oversight.
package job

import (
	"fmt"
	"sync"
)

// Proc is the handle the table keeps for each process of a job so `fg`
// can block on it after registration.
type Proc interface {
	PID() int
	// Wait blocks until the process has exited and returns its exit
	// code. It must be safe to call after the process was already
	// reaped; such a wait returns the cached result.
	Wait() (int, error)
}

// State is a job's position in its lifecycle. Transitions only move
// forward: running → stopped → done or running → done.
type State int

const (
	Running State = iota
	Stopped
	Done
)

// Job is one background pipeline. ID, PIDs and Cmdline are fixed at
// registration; only the state advances afterwards.
type Job struct {
	ID      int
	PIDs    []int
	Cmdline string

	procs []Proc

	mu       sync.Mutex
	state    State
	exitCode int
	hasCode  bool
	reaped   map[int]int // pid -> exit code
}

// Status renders the job state for display: "running", "stopped",
// "done (code)", or a bare "done" when the job was foregrounded before
// any of its processes were reaped.
func (j *Job) Status() string {
	j.mu.Lock()
	defer j.mu.Unlock()

	switch j.state {
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		if j.hasCode {
			return fmt.Sprintf("done (%d)", j.exitCode)
		}
		return "done"
	}
}

// ProcStatus renders the state of a single process of the job.
func (j *Job) ProcStatus(pid int) string {
	j.mu.Lock()
	defer j.mu.Unlock()

	if code, ok := j.reaped[pid]; ok {
		return fmt.Sprintf("done (%d)", code)
	}
	return "running"
}

// Procs returns the wait handles for every process in the job.
func (j *Job) Procs() []Proc {
	out := make([]Proc, len(j.procs))
	copy(out, j.procs)
	return out
}

// ForceDone advances the job to done without recording an exit code.
// Used by `fg` after it has waited on every process directly.
func (j *Job) ForceDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = Done
}

// markDone records one reaped process and advances the job to done.
func (j *Job) markDone(pid, code int) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.reaped[pid] = code
	j.state = Done
	j.exitCode = code
	j.hasCode = true
}
