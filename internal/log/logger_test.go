package log

import (
	"bytes"
	"strings"
	"testing"
)

func TestJSONFormatRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter("warn", "json", &buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("room", "r1").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line must be filtered: %q", out)
	}
	if !strings.Contains(out, `"room":"r1"`) {
		t.Fatalf("expected json field, got %q", out)
	}
}

func TestParseLevelDefault(t *testing.T) {
	if got := parseLevel("nonsense"); got.String() != "info" {
		t.Fatalf("parseLevel(nonsense) = %v", got)
	}
}
