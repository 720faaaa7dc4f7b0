package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"
)

// ViewerConfig configures the log viewer.
type ViewerConfig struct {
	Level   string         // minimum level (debug, info, warn, error)
	Pattern *regexp.Regexp // matched against message, scope and data
	NoColor bool
}

// Viewer filters and prints entries from the log file or the ring.
type Viewer struct {
	config ViewerConfig
	out    io.Writer
}

// NewViewer creates a new log viewer.
func NewViewer(cfg ViewerConfig, out io.Writer) *Viewer {
	return &Viewer{config: cfg, out: out}
}

// maxLineBytes bounds one log line when reading the file.
const maxLineBytes = 1 << 20

// Tail returns the matching entries among the last n lines of the file
// at path.
func (v *Viewer) Tail(path string, n int) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if n > 0 && len(lines) == n {
			lines = append(lines[:0], lines[1:]...)
		}
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}

	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if e, ok := ParseLine(line); ok && v.Matches(e) {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Filter returns the entries that match, keeping the last n when n > 0.
func (v *Viewer) Filter(entries []Entry, n int) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if v.Matches(e) {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Follow sends entries appended to the file at path until ctx is done.
func (v *Viewer) Follow(ctx context.Context, path string, entries chan<- Entry) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek to end: %w", err)
	}

	reader := bufio.NewReader(file)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var partial string
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		for {
			chunk, err := reader.ReadString('\n')
			if err != nil {
				// Keep an unterminated tail for the next tick.
				partial += chunk
				break
			}
			line := strings.TrimSuffix(partial+chunk, "\n")
			partial = ""
			e, ok := ParseLine(line)
			if !ok || !v.Matches(e) {
				continue
			}
			select {
			case entries <- e:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// ParseLine decodes one JSON line written by Setup. Lines that are not
// JSON come back as an entry holding the raw text.
func ParseLine(line string) (Entry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(line), &data); err != nil {
		return Entry{Message: line}, true
	}

	var e Entry
	if t, ok := data["time"].(string); ok {
		e.TS, _ = time.Parse(time.RFC3339Nano, t)
	}
	if l, ok := data["level"].(string); ok {
		e.Level = strings.ToLower(l)
	}
	if m, ok := data["msg"].(string); ok {
		e.Message = m
	}
	if s, ok := data[ScopeKey].(string); ok {
		e.Scope = s
	}
	for _, k := range []string{"time", "level", "msg", ScopeKey} {
		delete(data, k)
	}
	if len(data) > 0 {
		if b, err := json.Marshal(data); err == nil {
			e.Data = string(b)
		}
	}
	return e, true
}

// Matches reports whether e passes the level and pattern filters.
func (v *Viewer) Matches(e Entry) bool {
	if v.config.Level != "" && e.Level != "" && parseLevel(e.Level) < parseLevel(v.config.Level) {
		return false
	}
	if v.config.Pattern != nil {
		text := e.Message + " " + e.Scope + " " + e.Data
		if !v.config.Pattern.MatchString(text) {
			return false
		}
	}
	return true
}

// FormatEntry formats an entry as one display line.
func (v *Viewer) FormatEntry(e Entry) string {
	if e.TS.IsZero() && e.Level == "" {
		return e.Message
	}

	var sb strings.Builder
	sb.WriteString(e.TS.Local().Format("15:04:05.000"))
	sb.WriteByte(' ')
	sb.WriteString(v.formatLevel(e.Level))
	sb.WriteByte(' ')
	if e.Scope != "" {
		sb.WriteString(v.colorize("\033[36m", "["+e.Scope+"]"))
		sb.WriteByte(' ')
	}
	sb.WriteString(e.Message)
	if e.Data != "" {
		sb.WriteByte(' ')
		sb.WriteString(v.colorize("\033[90m", e.Data))
	}
	return sb.String()
}

// Print prints entries to the output.
func (v *Viewer) Print(entries []Entry) {
	for _, e := range entries {
		_, _ = fmt.Fprintln(v.out, v.FormatEntry(e))
	}
}

func (v *Viewer) formatLevel(level string) string {
	label := strings.ToUpper(level)
	if len(label) > 5 {
		label = label[:5]
	}
	label = fmt.Sprintf("%-5s", label)

	switch strings.ToLower(level) {
	case "debug":
		return v.colorize("\033[90m", label)
	case "info":
		return v.colorize("\033[32m", label)
	case "warn", "warning":
		return v.colorize("\033[33m", label)
	case "error":
		return v.colorize("\033[31m", label)
	default:
		return label
	}
}

func (v *Viewer) colorize(code, s string) string {
	if v.config.NoColor {
		return s
	}
	return code + s + "\033[0m"
}
