package logger

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

// captureLog redirects the standard logger for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		Sync()
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

// TestSuccessDropsDetails ensures a clean pass only leaves its summary line.
func TestSuccessDropsDetails(t *testing.T) {
	buf := captureLog(t)

	Begin("p-ok")
	Append("p-ok", "loaded 12 rows")
	Success("p-ok", "12 samples")
	Sync()

	out := buf.String()
	if strings.Contains(out, "loaded 12 rows") {
		t.Fatalf("detail leaked on success: %q", out)
	}
	if !strings.Contains(out, "ok 12 samples") {
		t.Fatalf("missing summary: %q", out)
	}
}

// TestFlushErrorReplaysDetails ensures a failed pass explains itself.
func TestFlushErrorReplaysDetails(t *testing.T) {
	buf := captureLog(t)

	Begin("p-bad")
	Append("p-bad", "query window 0..10")
	FlushError("p-bad", errors.New("boom"))
	Sync()

	out := buf.String()
	first := strings.Index(out, "query window 0..10")
	last := strings.Index(out, "boom")
	if first < 0 || last < 0 || first > last {
		t.Fatalf("unexpected replay order: %q", out)
	}
}

func TestAppendWithoutBeginWritesThrough(t *testing.T) {
	buf := captureLog(t)

	Append("nobody", "direct line")
	Sync()

	if !strings.Contains(buf.String(), "direct line") {
		t.Fatalf("line not written: %q", buf.String())
	}
}
