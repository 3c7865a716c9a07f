package job

import (
	"io"
	"sync"

	"github.com/fatih/color"

	"pipesh.dev/pipesh/core/sessionlog"
)

// Exit is one child termination, delivered by a process watcher to the
// reaper.
type Exit struct {
	PID  int
	Code int
}

// Context owns all job-control state for one shell: the job table, the
// monotonic id counter, and the reaper that applies child exits. It is
// created once at shell start and handed to the executor and the
// builtins.
//
// Exits arrive over a channel and are applied by a single reaper
// goroutine, so the table is only ever mutated from two places: the
// registering caller and the reaper, each under the table lock and
// never reentrantly.
type Context struct {
	mu     sync.Mutex
	jobs   []*Job // insertion order, for display
	byID   map[int]*Job
	byPID  map[int]*Job // secondary index maintained at registration
	nextID int

	exits chan Exit
	done  chan struct{}
	once  sync.Once

	notify  io.Writer
	refresh func()
	status  *color.Color
	log     *sessionlog.SessionLogger
}

// NewContext starts a job-control context. Reaper notifications are
// written to notify; refresh, if non-nil, is invoked afterwards to
// redraw the prompt. log may be nil to disable event logging.
func NewContext(notify io.Writer, refresh func(), log *sessionlog.SessionLogger) *Context {
	c := &Context{
		byID:    make(map[int]*Job),
		byPID:   make(map[int]*Job),
		nextID:  1,
		exits:   make(chan Exit, 16),
		done:    make(chan struct{}),
		notify:  notify,
		refresh: refresh,
		status:  color.New(color.FgCyan),
		log:     log,
	}
	go c.reap()
	return c
}

// Close stops the reaper. Exits notified afterwards are dropped.
func (c *Context) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Register adds a freshly launched background pipeline to the table and
// returns its job. Ids are strictly increasing and never reused.
func (c *Context) Register(procs []Proc, cmdline string) *Job {
	c.mu.Lock()
	j := &Job{
		ID:      c.nextID,
		Cmdline: cmdline,
		procs:   procs,
		reaped:  make(map[int]int),
	}
	c.nextID++
	for _, p := range procs {
		j.PIDs = append(j.PIDs, p.PID())
		c.byPID[p.PID()] = j
	}
	c.jobs = append(c.jobs, j)
	c.byID[j.ID] = j
	c.mu.Unlock()

	c.log.Record(&sessionlog.JobStart{JobID: j.ID, PIDs: j.PIDs, Cmdline: cmdline})
	return j
}

// Lookup finds a job by id.
func (c *Context) Lookup(id int) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.byID[id]
	return j, ok
}

// Jobs returns every registered job in insertion order.
func (c *Context) Jobs() []*Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Job, len(c.jobs))
	copy(out, c.jobs)
	return out
}

// Notify delivers one child exit to the reaper. After Close the event
// is dropped instead of blocking the caller.
func (c *Context) Notify(e Exit) {
	select {
	case c.exits <- e:
	case <-c.done:
	}
}

func (c *Context) reap() {
	for {
		select {
		case <-c.done:
			return
		case e := <-c.exits:
			c.apply(e)
		}
	}
}

func (c *Context) apply(e Exit) {
	c.mu.Lock()
	j := c.byPID[e.PID]
	c.mu.Unlock()
	if j == nil {
		// Not ours: the process belonged to a foreground pipeline
		// that was awaited directly.
		return
	}

	j.markDone(e.PID, e.Code)
	c.log.Record(&sessionlog.JobDone{JobID: j.ID, PID: e.PID, ExitCode: e.Code})

	c.status.Fprintf(c.notify, "[job %d] process %d exited with %d\n", j.ID, e.PID, e.Code)
	if c.refresh != nil {
		c.refresh()
	}
}
