package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed JSON log line.
type Entry struct {
	Time  time.Time
	Level string
	Msg   string
	Attrs map[string]any
	Raw   string
}

// ParseLine parses a JSON log line. Lines that are not JSON come back with
// only Raw and Msg set.
func ParseLine(line string) Entry {
	e := Entry{Raw: line, Msg: line}
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return e
	}
	if v, ok := m["time"].(string); ok {
		e.Time, _ = time.Parse(time.RFC3339Nano, v)
	}
	e.Level, _ = m["level"].(string)
	e.Msg, _ = m["msg"].(string)
	delete(m, "time")
	delete(m, "level")
	delete(m, "msg")
	e.Attrs = m
	return e
}

// Format renders an entry as a single human-readable line.
func (e Entry) Format() string {
	if e.Time.IsZero() && e.Level == "" {
		return e.Raw
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %-5s %s", e.Time.Format("15:04:05.000"), e.Level, e.Msg)
	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

// Tail returns the last n entries of the log file at or above minLevel.
func Tail(path string, n int, minLevel string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	minLvl := parseLevel(minLevel)
	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		e := ParseLine(scanner.Text())
		if e.Level != "" && parseLevel(e.Level) < minLvl {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Follow writes entries appended to path after the call until ctx is done.
func Follow(ctx context.Context, path string, minLevel string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	minLvl := parseLevel(minLevel)
	reader := bufio.NewReader(f)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		line, err := reader.ReadString('\n')
		if err == nil {
			e := ParseLine(strings.TrimRight(partial+line, "\n"))
			partial = ""
			if e.Level == "" || parseLevel(e.Level) >= minLvl {
				_, _ = fmt.Fprintln(out, e.Format())
			}
			continue
		}
		if err != io.EOF {
			return fmt.Errorf("failed to read log file: %w", err)
		}
		partial += line
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
