package logger

import "testing"

func TestNew_LevelsAndFormats(t *testing.T) {
	for _, level := range []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel, "", "WARNING"} {
		for _, format := range []Format{JSONFormat, TextFormat, ""} {
			log, err := New(Config{Level: level, Format: format})
			if err != nil {
				t.Fatalf("level %q format %q: unexpected error: %v", level, format, err)
			}
			log.With("component", "test").Debug("hello", "key", "value")
		}
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	if _, err := New(Config{Level: "verbose"}); err == nil {
		t.Error("expected error for invalid level")
	}
	if _, err := New(Config{Format: "xml"}); err == nil {
		t.Error("expected error for invalid format")
	}
}

func TestNewNop(t *testing.T) {
	var log Logger = NewNop()
	log.Info("discarded", "n", 1)
	log.With("a", 1).Error("discarded")
}
