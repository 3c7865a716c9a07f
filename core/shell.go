package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"golang.org/x/term"

	"pipesh.dev/pipesh/core/config"
	"pipesh.dev/pipesh/core/job"
	"pipesh.dev/pipesh/core/sessionlog"
	"pipesh.dev/pipesh/core/shell"
)

// DefaultPrompt is used when the configuration does not set one.
// `\w` expands to the working directory and `\$` to a dollar sign.
const DefaultPrompt = `\w\$ `

// Shell is one interactive session: the read loop, the builtin
// dispatch, and the job-control context threaded through both.
type Shell struct {
	Config   *config.Configuration
	Fs       afero.Fs
	Readline *readline.Instance
	Jobs     *job.Context
	Exec     *Executor
	Log      *sessionlog.SessionLogger

	// Out and ErrOut receive the shell's own messages: builtin output,
	// error reports, job announcements. Child processes write to the
	// executor's streams instead.
	Out    io.Writer
	ErrOut io.Writer

	exitRequested bool
	exitCode      int
	toClose       listCloser
}

// NewShell assembles an interactive shell on the real OS: readline on
// the controlling terminal, real process launches, and the job-control
// context shared between them.
func NewShell(cfg *config.Configuration) (*Shell, error) {
	fs := afero.NewOsFs()
	if !cfg.Color {
		color.NoColor = true
	}

	var toClose listCloser

	var slog *sessionlog.SessionLogger
	if cfg.SessionLog != "" {
		fd, err := fs.OpenFile(cfg.SessionLog, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		toClose = append(toClose, fd)
		slog = sessionlog.NewJSONLinesLogRecorder(fd).NewSession()
	}

	rlCfg := &readline.Config{
		HistoryFile: historyPath(cfg),
		FuncGetWidth: func() int {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
				return w
			}
			return 80
		},
		FuncIsTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
	if err := rlCfg.Init(); err != nil {
		toClose.Close()
		return nil, err
	}

	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		toClose.Close()
		return nil, err
	}
	toClose = append(toClose, rl)

	// Notifications print through readline so they land above the
	// prompt, and the prompt is redrawn afterwards.
	jobs := job.NewContext(rl, func() { rl.Operation.Refresh() }, slog)
	toClose = append(toClose, jobs)

	s := &Shell{
		Config:   cfg,
		Fs:       fs,
		Readline: rl,
		Jobs:     jobs,
		Log:      slog,
		Out:      rl,
		ErrOut:   rl,
		Exec: &Executor{
			Fs:     fs,
			Runner: OSRunner{},
			Jobs:   jobs,
			Stdin:  os.Stdin,
			Stdout: os.Stdout,
			Stderr: os.Stderr,
		},
	}
	s.toClose = toClose
	return s, nil
}

func historyPath(cfg *config.Configuration) string {
	if cfg.HistoryFile == "" {
		return ""
	}
	if filepath.IsAbs(cfg.HistoryFile) {
		return cfg.HistoryFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, cfg.HistoryFile)
}

// Prompt renders the configured prompt for the current state.
func (s *Shell) Prompt() string {
	prompt := s.Config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	if strings.Contains(prompt, `\w`) {
		wd, err := os.Getwd()
		if err != nil {
			wd = "?"
		}
		if home, err := os.UserHomeDir(); err == nil && home != "/" && strings.HasPrefix(wd, home) {
			wd = "~" + strings.TrimPrefix(wd, home)
		}
		prompt = strings.ReplaceAll(prompt, `\w`, wd)
	}

	return strings.ReplaceAll(prompt, `\$`, "$")
}

// Run is the read-eval loop. It returns the session's exit code once
// input closes or the exit builtin fires.
func (s *Shell) Run() int {
	if s.Config.Motd != "" {
		fmt.Fprintln(s.Out, s.Config.Motd)
	}

	for !s.exitRequested {
		s.Readline.SetPrompt(s.Prompt())
		line, err := s.Readline.Readline()

		switch {
		case err == io.EOF:
			fmt.Fprintln(s.Out, "exit")
			return s.exitCode

		case err == readline.ErrInterrupt:
			continue // Ctrl-C on an empty or partial line.

		case err != nil:
			log.Printf("readline: %v", err)
			continue
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.Interpret(line)
	}
	return s.exitCode
}

// Interpret parses and executes one input line. Every reported error is
// local to the line; only the exit builtin ends the session.
func (s *Shell) Interpret(line string) {
	pipeline := shell.ParseLine(line)
	if len(pipeline) == 0 {
		return
	}

	// Builtins dispatch on the first command of the line only, never
	// on mid-pipeline positions, and take the whole line when they
	// match.
	if argv := pipeline[0].Argv; len(argv) > 0 {
		if builtin, ok := AllBuiltins[argv[0]]; ok {
			builtin.Main(s, argv)
			return
		}
	}

	s.Log.Record(&sessionlog.Exec{Cmdline: line})

	// An interactive interrupt kills the pipeline being awaited, not
	// the shell.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := s.Exec.Run(ctx, pipeline)
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(s.Out)
	case err != nil:
		fmt.Fprintln(s.ErrOut, err)
	case res.Background:
		fmt.Fprintf(s.Out, "[job %d] %d\n", res.Job.ID, res.Job.PIDs[0])
	}
}

// RequestExit makes the read loop stop after the current line.
func (s *Shell) RequestExit(code int) {
	s.exitRequested = true
	s.exitCode = code
}

func (s *Shell) Close() error {
	return s.toClose.Close()
}

type listCloser []io.Closer

func (lc listCloser) Close() error {
	var lastErr error
	for _, v := range lc {
		if err := v.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
