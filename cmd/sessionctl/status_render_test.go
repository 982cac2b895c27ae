package main

import (
	"fmt"
	"strings"
	"testing"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("daemon", statusError, "not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "daemon:", "[ERROR] not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("daemon", statusOK, "running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestBoolKind(t *testing.T) {
	if boolKind(true) != statusOK || boolKind(false) != statusError {
		t.Fatal("boolKind mapping wrong")
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"ID", "Duration"},
		[][]string{{"abc12345", "90.3s"}, {"short"}},
		1,
	)
	if !strings.Contains(out, "abc12345") || !strings.Contains(out, "90.3s") {
		t.Fatalf("table missing cells:\n%s", out)
	}
	if !strings.Contains(out, "short") {
		t.Fatalf("short row should be padded, not dropped:\n%s", out)
	}
}

func TestRenderTableEmptyHeaders(t *testing.T) {
	if out := renderTable(nil, nil); out != "" {
		t.Fatalf("expected empty render, got %q", out)
	}
}

func TestFormatDuration(t *testing.T) {
	if got := formatDuration(42.3); got != "42.3s" {
		t.Fatalf("short duration %q", got)
	}
	if got := formatDuration(3600); got != "1h0m0s" {
		t.Fatalf("long duration %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789abcdef"); got != "01234567" {
		t.Fatalf("shortID %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Fatalf("shortID %q", got)
	}
}
