package core

import (
	"io"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"
)

// ProcAttr describes how to launch one pipeline stage.
type ProcAttr struct {
	// Stdin, Stdout and Stderr are the stage's standard streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Pgid is the process group to join. Zero means lead a new group,
	// which is how the first stage of every pipeline is launched.
	Pgid int
}

// Proc is a handle on a launched process. Wait may be called any number
// of times, concurrently; the first wait reaps the process and later
// ones return the cached result.
type Proc interface {
	PID() int
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	Signal(sig os.Signal) error
}

// Runner creates child processes. The shell only ever talks to this
// interface so tests can substitute a fake.
type Runner interface {
	// Start launches argv[0] with the given attributes. The returned
	// error wraps exec.ErrNotFound when the program cannot be located.
	Start(argv []string, attr ProcAttr) (Proc, error)
}

// OSRunner launches real operating system processes.
type OSRunner struct{}

var _ Runner = OSRunner{}

func (OSRunner) Start(argv []string, attr ProcAttr) (Proc, error) {
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path)
	cmd.Args = argv
	cmd.Stdin = attr.Stdin
	cmd.Stdout = attr.Stdout
	cmd.Stderr = attr.Stderr
	cmd.SysProcAttr = &unix.SysProcAttr{
		Setpgid: true,
		Pgid:    attr.Pgid,
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &osProc{cmd: cmd, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

type osProc struct {
	cmd  *exec.Cmd
	done chan struct{}

	// Written once by reap before done is closed.
	code    int
	waitErr error
}

// reap waits for the child exactly once so the kernel can release it,
// then caches the result for every later Wait.
func (p *osProc) reap() {
	err := p.cmd.Wait()
	switch err.(type) {
	case nil, *exec.ExitError:
		p.code = p.cmd.ProcessState.ExitCode()
	default:
		p.code = -1
		p.waitErr = err
	}
	close(p.done)
}

func (p *osProc) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProc) Done() <-chan struct{} {
	return p.done
}

func (p *osProc) Wait() (int, error) {
	<-p.done
	return p.code, p.waitErr
}

func (p *osProc) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}
