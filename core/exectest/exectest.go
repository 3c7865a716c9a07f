// Package exectest provides a fake process runner for exercising the
// executor without creating real processes.
package exectest

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"pipesh.dev/pipesh/core"
)

// Runner is a core.Runner that records every launch instead of creating
// processes. The zero value is not usable; call NewRunner.
type Runner struct {
	mu       sync.Mutex
	nextPID  int
	started  []*Proc
	notFound map[string]bool
	startErr map[string]error
	exitsNow map[string]int
}

func NewRunner() *Runner {
	return &Runner{
		nextPID:  99,
		notFound: make(map[string]bool),
		startErr: make(map[string]error),
		exitsNow: make(map[string]int),
	}
}

// NotFound makes launches of name fail with exec.ErrNotFound.
func (r *Runner) NotFound(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound[name] = true
}

// FailWith makes launches of name fail with err.
func (r *Runner) FailWith(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startErr[name] = err
}

// ExitsWith makes every launched instance of name exit immediately with
// the given code, for foreground runs that must not block.
func (r *Runner) ExitsWith(name string, code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exitsNow[name] = code
}

// Started returns every successfully launched process in launch order.
func (r *Runner) Started() []*Proc {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Proc, len(r.started))
	copy(out, r.started)
	return out
}

var _ core.Runner = (*Runner)(nil)

func (r *Runner) Start(argv []string, attr core.ProcAttr) (core.Proc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := argv[0]
	if r.notFound[name] {
		return nil, fmt.Errorf("exec: %q: %w", name, exec.ErrNotFound)
	}
	if err := r.startErr[name]; err != nil {
		return nil, err
	}

	r.nextPID++
	p := &Proc{
		Argv: argv,
		Attr: attr,
		pid:  r.nextPID,
		done: make(chan struct{}),
	}
	r.started = append(r.started, p)

	if code, ok := r.exitsNow[name]; ok {
		p.Exit(code)
	}
	return p, nil
}

// Proc is one fake process. Argv and Attr are the launch arguments as
// the executor provided them.
type Proc struct {
	Argv []string
	Attr core.ProcAttr

	pid  int
	done chan struct{}

	mu      sync.Mutex
	exited  bool
	code    int
	signals []os.Signal
}

var _ core.Proc = (*Proc)(nil)

// Exit marks the process terminated with the given code. Later calls
// are no-ops, mirroring a real process that can only die once.
func (p *Proc) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.exited {
		return
	}
	p.exited = true
	p.code = code
	close(p.done)
}

// Killed reports whether the process received a kill signal.
func (p *Proc) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, sig := range p.signals {
		if sig == os.Kill {
			return true
		}
	}
	return false
}

func (p *Proc) PID() int { return p.pid }

func (p *Proc) Done() <-chan struct{} { return p.done }

func (p *Proc) Wait() (int, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code, nil
}

func (p *Proc) Signal(sig os.Signal) error {
	p.mu.Lock()
	p.signals = append(p.signals, sig)
	p.mu.Unlock()
	if sig == os.Kill {
		p.Exit(-1)
	}
	return nil
}
