package logger

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestDumpExceptionLogsStackAndError(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(&buf)

	DumpException("test context", errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, "test context") || !strings.Contains(out, "boom") {
		t.Fatalf("expected context and error in output, got %q", out)
	}
	if !strings.Contains(out, "TestDumpExceptionLogsStackAndError") {
		t.Fatalf("stack trace missing calling test frame: %q", out)
	}
}

func TestExceptionLoggerSatisfiesInterface(t *testing.T) {
	var buf bytes.Buffer
	InitLogger(&buf)

	var el ExceptionLogger
	el.DumpException("ctx", "some error")

	if !strings.Contains(buf.String(), "some error") {
		t.Fatalf("expected logged error in output, got %q", buf.String())
	}
}
