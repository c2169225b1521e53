package logx

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	logger := NewLogger("coordinator")

	if logger.GetComponent() != "coordinator" {
		t.Errorf("Expected component 'coordinator', got '%s'", logger.GetComponent())
	}
}

func TestLogFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("coordinator", &buf)
	logger.Info("Test message with %s", "formatting")

	output := buf.String()

	if !strings.Contains(output, "[coordinator]") {
		t.Errorf("Expected component in output, got: %s", output)
	}

	if !strings.Contains(output, "INFO") {
		t.Errorf("Expected log level in output, got: %s", output)
	}

	if !strings.Contains(output, "Test message with formatting") {
		t.Errorf("Expected formatted message in output, got: %s", output)
	}

	// Check timestamp format (basic check)
	if !strings.Contains(output, "T") || !strings.Contains(output, "Z") {
		t.Errorf("Expected ISO timestamp in output, got: %s", output)
	}
}

// TestRingCapture verifies that a logger attached to a ring records entries.
func TestRingCapture(t *testing.T) {
	var buf bytes.Buffer
	ring := NewRing(10)
	logger := NewLoggerWithWriter("writer", &buf).WithRing(ring)

	logger.Info("draft complete")
	logger.Warn("evaluation degraded")

	entries := ring.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 captured entries, got %d", len(entries))
	}
	if entries[0].Level != string(LevelInfo) || entries[0].Message != "draft complete" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].Level != string(LevelWarn) {
		t.Errorf("Expected WARN entry, got %+v", entries[1])
	}
	if entries[0].Component != "writer" {
		t.Errorf("Expected component 'writer', got %q", entries[0].Component)
	}
}

// TestRingBound verifies the ring drops oldest entries past its capacity.
func TestRingBound(t *testing.T) {
	ring := NewRing(5)
	for i := 0; i < 12; i++ {
		ring.Add(Entry{Message: fmt.Sprintf("entry %d", i)})
	}

	entries := ring.Entries()
	if len(entries) != 5 {
		t.Fatalf("Expected ring capped at 5, got %d", len(entries))
	}
	if entries[0].Message != "entry 7" {
		t.Errorf("Expected oldest retained entry 'entry 7', got %q", entries[0].Message)
	}
	if entries[4].Message != "entry 11" {
		t.Errorf("Expected newest entry 'entry 11', got %q", entries[4].Message)
	}
}

// TestRingRestore verifies import replaces ring contents.
func TestRingRestore(t *testing.T) {
	ring := NewRing(10)
	ring.Add(Entry{Message: "stale"})

	ring.Restore([]Entry{{Message: "a"}, {Message: "b"}})

	entries := ring.Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries after restore, got %d", len(entries))
	}
	if entries[0].Message != "a" || entries[1].Message != "b" {
		t.Errorf("Unexpected restored entries: %+v", entries)
	}
}

func TestDebugDisabledByDefault(t *testing.T) {
	SetDebugConfig(false, nil)

	var buf bytes.Buffer
	logger := NewLoggerWithWriter("research", &buf)
	logger.Debug("should not appear")

	if buf.Len() != 0 {
		t.Errorf("Expected no debug output when disabled, got: %s", buf.String())
	}
}

func TestDebugDomainFiltering(t *testing.T) {
	SetDebugConfig(true, []string{"coordinator"})
	defer SetDebugConfig(false, nil)

	if !IsDebugEnabledForDomain("coordinator") {
		t.Error("Expected coordinator domain enabled")
	}
	if IsDebugEnabledForDomain("research") {
		t.Error("Expected research domain disabled")
	}

	SetDebugConfig(true, nil)
	if !IsDebugEnabledForDomain("research") {
		t.Error("Expected all domains enabled when no filter set")
	}
}

func TestErrorfReturnsError(t *testing.T) {
	err := Errorf("extraction failed: %s", "bad json")
	if err == nil {
		t.Fatal("Expected error from Errorf")
	}
	if !strings.Contains(err.Error(), "bad json") {
		t.Errorf("Expected formatted message, got: %v", err)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Expected nil for nil error")
	}

	base := fmt.Errorf("connection refused")
	wrapped := Wrap(base, "db connect")
	if wrapped == nil {
		t.Fatal("Expected wrapped error")
	}
	if !strings.Contains(wrapped.Error(), "db connect: connection refused") {
		t.Errorf("Unexpected wrapped message: %v", wrapped)
	}
}
