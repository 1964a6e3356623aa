// Package logger implements a per-pass in-memory log buffer.
//
// Details of a panel refresh are buffered WHILE the pass runs.
//   - On failure the buffer is replayed, followed by the final error.
//   - On success the buffer is dropped and one short line is written.
//
// A dedicated goroutine owns the buffers and receives commands over a
// channel; there are no mutexes.
package logger

import (
	"bytes"
	"log"
	"strings"
	"time"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
	actSync
)

type cmd struct {
	act     action
	passID  string
	message string // for Append and Success
	err     error  // for FlushErr
	when    time.Time
	done    chan struct{} // for Sync
}

var ch = make(chan cmd, 128)

// Begin enables buffering for passID. The pass start is remembered so
// Success can report the duration.
func Begin(passID string) { ch <- cmd{act: actBegin, passID: passID, when: time.Now()} }

// Append adds a detail line.
func Append(passID, msg string) {
	ch <- cmd{act: actAppend, passID: passID, message: msg, when: time.Now()}
}

// Success drops the buffer and writes one summary line.
func Success(passID, summary string) {
	ch <- cmd{act: actSuccess, passID: passID, message: summary, when: time.Now()}
}

// FlushError replays the buffer followed by the final error.
func FlushError(passID string, err error) {
	ch <- cmd{act: actFlushErr, passID: passID, err: err, when: time.Now()}
}

// Sync blocks until every command sent before it has been written.
func Sync() {
	done := make(chan struct{})
	ch <- cmd{act: actSync, done: done}
	<-done
}

func init() { go runloop() }

type buffer struct {
	started time.Time
	lines   bytes.Buffer
}

func runloop() {
	buffers := make(map[string]*buffer)

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.passID] = &buffer{started: c.when}

		case actAppend:
			if b := buffers[c.passID]; b != nil {
				_, _ = b.lines.WriteString(c.message + "\n")
			} else {
				log.Print(c.message) // no buffer, write through
			}

		case actSuccess:
			if b := buffers[c.passID]; b != nil {
				log.Printf("[%-8s][Refresh] ok %s in %s", c.passID, c.message, c.when.Sub(b.started).Round(time.Millisecond))
				delete(buffers, c.passID)
			} else {
				log.Printf("[%-8s][Refresh] ok %s", c.passID, c.message)
			}

		case actFlushErr:
			if b := buffers[c.passID]; b != nil {
				lines := strings.Split(strings.TrimRight(b.lines.String(), "\n"), "\n")
				for _, ln := range lines {
					if ln != "" {
						log.Print(ln)
					}
				}
				delete(buffers, c.passID)
			}
			log.Printf("[%-8s][ERROR] %v", c.passID, c.err)

		case actSync:
			close(c.done)
		}
	}
}
