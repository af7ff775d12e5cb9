package convlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestCleanStripsANSIAndControlChars(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"ansi color", "\x1b[31mred\x1b[0m text", "red text"},
		{"cursor movement", "\x1b[2J\x1b[Hcleared", "cleared"},
		{"control chars", "bell\x07 and null\x00", "bell and null"},
		{"keeps newline and tab", "line1\n\tline2", "line1\n\tline2"},
		{"trims whitespace", "  padded  ", "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Clean(tt.in); got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoopWhenDisabled(t *testing.T) {
	l, err := New(Config{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := l.(Noop); !ok {
		t.Fatalf("expected Noop logger, got %T", l)
	}
	l.Log(Event{UserID: "u"})
	if err := l.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestFileLoggerWritesPerSessionFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(Config{Enabled: true, Dir: dir, QueueSize: 10}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Log(Event{
		UserID:     "anon_abc",
		SessionID:  "default",
		Channel:    "chat_http",
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: "\x1b[1mhello\x1b[0m",
	})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := filepath.Join(dir, "anon_abc", "default.ndjson")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("expected log file at %s: %v", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("expected one log line")
	}

	var event Event
	if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if event.UserID != "anon_abc" {
		t.Errorf("user_id: got %s", event.UserID)
	}
	if event.Content != "hello" {
		t.Errorf("content should be cleaned, got %q", event.Content)
	}
	if event.ContentRaw != "\x1b[1mhello\x1b[0m" {
		t.Errorf("content_raw should be preserved, got %q", event.ContentRaw)
	}
	if event.Timestamp == "" {
		t.Error("timestamp should be filled in")
	}
}

func TestFileLoggerGlobalFile(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "all.ndjson")
	l, err := New(Config{GlobalEnabled: true, GlobalPath: globalPath, QueueSize: 10}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Log(Event{UserID: "anon_abc", SessionID: "s1", ContentRaw: "one"})
	l.Log(Event{UserID: "anon_def", SessionID: "s2", ContentRaw: "two"})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(globalPath)
	if err != nil {
		t.Fatalf("read global log: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Errorf("expected 2 log lines, got %d", lines)
	}
}

func TestSanitizePathComponent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"anon_abc123", "anon_abc123"},
		{"../escape", ".._escape"},
		{"..", "_"},
		{"", "_"},
		{"a/b\\c", "a_b_c"},
	}
	for _, tt := range tests {
		if got := sanitizePathComponent(tt.in); got != tt.want {
			t.Errorf("sanitizePathComponent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
