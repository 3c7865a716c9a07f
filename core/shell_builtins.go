package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/pborman/getopt/v2"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	switch len(args) {
	case 1:
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(s.ErrOut, "cd: error: %v\n", err)
			return 1
		}
		args = append(args, home)
		fallthrough
	case 2:
		if err := os.Chdir(args[1]); err != nil {
			switch {
			case errors.Is(err, fs.ErrNotExist):
				fmt.Fprintf(s.ErrOut, "cd: %s: No such file or directory\n", args[1])
			case errors.Is(err, fs.ErrPermission):
				fmt.Fprintf(s.ErrOut, "cd: %s: Permission denied\n", args[1])
			default:
				fmt.Fprintf(s.ErrOut, "cd: error: %v\n", err)
			}
			return 1
		}
	default:
		fmt.Fprintf(s.ErrOut, "%s: too many arguments\n", args[0])
		return 1
	}
	return 0
}

// Pwd prints the working directory.
func Pwd(s *Shell, args []string) int {
	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(s.ErrOut, "pwd: %v\n", err)
		return 1
	}
	fmt.Fprintln(s.Out, wd)
	return 0
}

// Exit quits the shell with an optional status code. A non-numeric code
// warns and falls back to zero.
func Exit(s *Shell, args []string) int {
	code := 0
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(s.ErrOut, "exit: %s: numeric argument required\n", args[1])
		} else {
			code = parsed
		}
	}
	s.RequestExit(code)
	return code
}

func Help(s *Shell, args []string) int {
	w := s.Out
	fmt.Fprintln(w, "pipesh, a small pipeline shell")
	fmt.Fprintln(w, "These commands are defined internally. Type `help` to see this list.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "  cd [dir]       Change the current directory")
	fmt.Fprintln(w, "  exit [code]    Exit the shell with an optional status code")
	fmt.Fprintln(w, "  fg <job>       Wait for a background job to finish")
	fmt.Fprintln(w, "  help           Display this message")
	fmt.Fprintln(w, "  jobs [-l]      List background jobs")
	fmt.Fprintln(w, "  pwd            Print the current working directory")
	return 0
}

// Jobs lists the job table.
func Jobs(s *Shell, args []string) int {
	opts := getopt.New()
	long := opts.Bool('l', "also list each process of every job")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.ErrOut
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-l]")
		fmt.Fprintln(w, "List background jobs.")
		if err != nil {
			return 1
		}
		return 0
	}

	jobs := s.Jobs.Jobs()
	if len(jobs) == 0 {
		fmt.Fprintln(s.Out, "No background jobs")
		return 0
	}

	tw := tabwriter.NewWriter(s.Out, 8, 8, 4, ' ', 0)
	defer tw.Flush()

	for _, j := range jobs {
		var pids []string
		for _, pid := range j.PIDs {
			pids = append(pids, strconv.Itoa(pid))
		}
		fmt.Fprintf(tw, "[%d]\t%s\t%s\t%s\n", j.ID, j.Status(), strings.Join(pids, ","), j.Cmdline)
		if *long {
			for _, pid := range j.PIDs {
				fmt.Fprintf(tw, "\t%d\t%s\t\n", pid, j.ProcStatus(pid))
			}
		}
	}
	return 0
}

// Fg blocks until every process of the given job has finished.
func Fg(s *Shell, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(s.ErrOut, "fg: job id required")
		return 1
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintln(s.ErrOut, "fg: numeric job id required")
		return 1
	}
	j, ok := s.Jobs.Lookup(id)
	if !ok {
		fmt.Fprintf(s.ErrOut, "fg: job %d not found\n", id)
		return 1
	}

	fmt.Fprintf(s.Out, "Bringing job %d to foreground: %s\n", j.ID, j.Cmdline)
	// Waits on processes the reaper already collected return the
	// cached status and are harmless.
	for _, p := range j.Procs() {
		_, _ = p.Wait()
	}
	j.ForceDone()
	return 0
}

func init() {
	AllBuiltins["cd"] = ShellBuiltinFunc(Cd)
	AllBuiltins["pwd"] = ShellBuiltinFunc(Pwd)
	AllBuiltins["exit"] = ShellBuiltinFunc(Exit)
	AllBuiltins["help"] = ShellBuiltinFunc(Help)
	AllBuiltins["jobs"] = ShellBuiltinFunc(Jobs)
	AllBuiltins["fg"] = ShellBuiltinFunc(Fg)
}
