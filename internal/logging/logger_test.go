package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Format: "json", Output: &buf})

	logger.Info().Str("user_id", "u-1").Msg("connection established")

	out := buf.String()
	if !strings.Contains(out, `"user_id":"u-1"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"connection established"`) {
		t.Errorf("expected message field in output, got %q", out)
	}
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "error", Format: "json", Output: &buf})

	logger.Info().Msg("should be filtered")
	if buf.Len() != 0 {
		t.Errorf("expected info-level message to be filtered at error level, got %q", buf.String())
	}

	logger.Error().Msg("should appear")
	if buf.Len() == 0 {
		t.Error("expected error-level message to appear")
	}
}

func TestFor_AddsComponentField(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Level: "info", Format: "json", Output: &buf})
	child := For(base, "aggregator")

	child.Info().Msg("tick")

	if !strings.Contains(buf.String(), `"component":"aggregator"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}
