// Package sessionlog is an event logging framework for shell sessions.
// Events are exported as newline delimited JSON objects so they can be
// tailed, grepped, and post-processed without special tooling.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"time"
)

// Entry is one record in the session log. Exactly one of the event
// fields is set.
type Entry struct {
	// TimestampMicros is the time the event was recorded, in
	// microseconds since the UNIX epoch.
	TimestampMicros int64 `json:"timestamp_micros"`
	// SessionID ties together every event of one interactive session.
	SessionID string `json:"session_id,omitempty"`

	Exec     *Exec     `json:"exec,omitempty"`
	JobStart *JobStart `json:"job_start,omitempty"`
	JobDone  *JobDone  `json:"job_done,omitempty"`
}

// Event is one loggable shell occurrence.
type Event interface {
	attach(e *Entry)
}

// Exec records a command line handed to the executor.
type Exec struct {
	Cmdline string `json:"cmdline"`
}

func (ev *Exec) attach(e *Entry) { e.Exec = ev }

// JobStart records the registration of a background job.
type JobStart struct {
	JobID   int    `json:"job_id"`
	PIDs    []int  `json:"pids"`
	Cmdline string `json:"cmdline"`
}

func (ev *JobStart) attach(e *Entry) { e.JobStart = ev }

// JobDone records one reaped process of a background job.
type JobDone struct {
	JobID    int `json:"job_id"`
	PID      int `json:"pid"`
	ExitCode int `json:"exit_code"`
}

func (ev *JobDone) attach(e *Entry) { e.JobDone = ev }

// LogRecorder is a callback that stores entries in an external datastore.
type LogRecorder func(e *Entry) error

// Logger captures session events.
type Logger struct {
	Record LogRecorder
}

// NewJSONLinesLogRecorder creates a Logger that exports entries in
// newline delimited JSON object format.
func NewJSONLinesLogRecorder(w io.Writer) *Logger {
	return &Logger{
		Record: func(e *Entry) error {
			entry, err := json.Marshal(e)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(w, string(entry))
			return err
		},
	}
}

// NewSession creates a logger with an attached session ID.
func (l *Logger) NewSession() *SessionLogger {
	return &SessionLogger{logger: l, sessionID: fmt.Sprintf("%d", rand.Uint64())}
}

// SessionLogger logs events with a shared session ID. A nil
// SessionLogger discards everything, so callers don't need to guard
// against logging being disabled.
type SessionLogger struct {
	logger    *Logger
	sessionID string
}

// Record stores one event.
func (l *SessionLogger) Record(event Event) error {
	if l == nil {
		return nil
	}
	e := &Entry{
		TimestampMicros: time.Now().UnixNano() / int64(time.Microsecond),
		SessionID:       l.sessionID,
	}
	event.attach(e)
	return l.logger.Record(e)
}
