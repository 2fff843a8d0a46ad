// Package eventlog keeps an append-only, human-readable record of every raw
// webhook body received, before any parsing happens.
//
// Each entry is written as
//
//	2025-01-02T03:04:05.678Z
//	RAW:
//	{
//	  "type": "payment.updated",
//	  ...
//	}
//
// followed by a blank line. Bodies that are not valid JSON are stored as a
// JSON string so every entry can be parsed back.
package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/payment-alerts/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	timeLayout = "2006-01-02T15:04:05.000Z"
	rawMarker  = "RAW:"
)

// Entry is one logged webhook body. Raw is compact JSON.
type Entry struct {
	Time time.Time
	Raw  json.RawMessage
}

type Log struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// Open returns a log writing to cfg.Path with size based rotation. The file is
// created on first Append.
func Open(cfg config.EventLogConfig) *Log {
	return New(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

func New(w io.Writer) *Log {
	return &Log{w: w, now: time.Now}
}

// Append writes one entry with a single Write call.
func (l *Log) Append(raw []byte) error {
	var buf bytes.Buffer
	buf.WriteString(l.now().UTC().Format(timeLayout))
	buf.WriteString("\n" + rawMarker + "\n")
	if err := indent(&buf, raw); err != nil {
		return fmt.Errorf("eventlog: encode body: %w", err)
	}
	buf.WriteString("\n\n")

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("eventlog: write: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	if c, ok := l.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func indent(buf *bytes.Buffer, raw []byte) error {
	trimmed := bytes.TrimSpace(raw)
	if json.Valid(trimmed) {
		return json.Indent(buf, trimmed, "", "  ")
	}
	s, err := json.Marshal(string(raw))
	if err != nil {
		return err
	}
	buf.Write(s)
	return nil
}

// ReadFile parses every entry of the log at path.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses a log written by Append.
func Read(r io.Reader) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var (
		entries []Entry
		cur     *Entry
		body    []string
		inBody  bool
		lineNo  int
	)

	finish := func() error {
		var compact bytes.Buffer
		if err := json.Compact(&compact, []byte(strings.Join(body, "\n"))); err != nil {
			return fmt.Errorf("eventlog: entry at %s: %w", cur.Time.Format(timeLayout), err)
		}
		cur.Raw = compact.Bytes()
		entries = append(entries, *cur)
		cur, body, inBody = nil, nil, false
		return nil
	}

	for sc.Scan() {
		lineNo++
		line := sc.Text()

		switch {
		case inBody && line == "":
			if err := finish(); err != nil {
				return entries, err
			}
		case inBody:
			body = append(body, line)
		case cur != nil:
			if line != rawMarker {
				return entries, fmt.Errorf("eventlog: line %d: expected %q", lineNo, rawMarker)
			}
			inBody = true
		case line == "":
		default:
			ts, err := time.Parse(timeLayout, line)
			if err != nil {
				return entries, fmt.Errorf("eventlog: line %d: bad timestamp: %w", lineNo, err)
			}
			cur = &Entry{Time: ts}
		}
	}
	if err := sc.Err(); err != nil {
		return entries, err
	}

	switch {
	case inBody && len(body) > 0:
		// last entry without its trailing blank line
		if err := finish(); err != nil {
			return entries, err
		}
	case cur != nil:
		return entries, errors.New("eventlog: truncated entry at end of log")
	}
	return entries, nil
}
