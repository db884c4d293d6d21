package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestFileLoggerWritesEntries(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	l, err := NewFileLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 1024 * 1024,
		MaxBackups:  1,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	l.Info("translation started", String("docID", "doc-1"), Int("pages", 3))
	l.Warn("ocr unavailable")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "translation started") {
		t.Errorf("log missing info entry: %s", content)
	}
	if !strings.Contains(content, "docID=doc-1") {
		t.Errorf("log missing field: %s", content)
	}
	if !strings.Contains(content, "[WARN]") {
		t.Errorf("log missing warn entry: %s", content)
	}
}

func TestFileLoggerLevelFiltering(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	l, err := NewFileLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 1024 * 1024,
		MaxBackups:  1,
		Level:       LevelWarn,
	})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	l.Debug("should not appear")
	l.Info("should not appear either")
	l.Error("should appear", nil)
	l.Close()

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if strings.Contains(content, "should not appear") {
		t.Errorf("filtered entries were written: %s", content)
	}
	if !strings.Contains(content, "should appear") {
		t.Errorf("error entry missing: %s", content)
	}
}

func TestFileLoggerRotation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "rotate.log")
	l, err := NewFileLogger(&Config{
		LogFilePath: logPath,
		MaxFileSize: 200, // tiny, rotates after a few entries
		MaxBackups:  2,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	for i := 0; i < 20; i++ {
		l.Info("rotation filler entry with some padding to exceed the limit quickly")
	}
	l.Close()

	if _, err := os.Stat(logPath + ".1"); err != nil {
		t.Errorf("expected rotated backup %s.1 to exist: %v", logPath, err)
	}
}

func TestGlobalLoggerNoopByDefault(t *testing.T) {
	SetGlobalLogger(nil)
	// Must not panic without initialization.
	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error", os.ErrNotExist)
	if err := Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
