package attendance

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestExportCSV(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	records := []Record{
		{ID: "a", SessionID: "s", StudentName: "Alice", StudentID: "S001", StudentEmail: "alice@example.edu", AttendedAt: base},
		{ID: "b", SessionID: "s", StudentName: "Bob", StudentID: "S002", StudentEmail: "bob@example.edu", AttendedAt: base.Add(5 * time.Minute)},
	}

	var buf bytes.Buffer
	if err := ExportCSV(&buf, records); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	out := buf.String()

	if !strings.HasPrefix(out, "\uFEFF") {
		t.Error("missing UTF-8 BOM prefix")
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(out, "\uFEFF")), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if lines[0] != "#,Name,Student ID,Email,Attended At" {
		t.Errorf("header = %q", lines[0])
	}
	// Newest first.
	if !strings.Contains(lines[1], "Bob") || !strings.Contains(lines[1], "02/03/2026 09:05:00") {
		t.Errorf("first row should be Bob at 09:05, got %q", lines[1])
	}
	if !strings.Contains(lines[2], "Alice") {
		t.Errorf("second row should be Alice, got %q", lines[2])
	}
}

func TestExportCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, nil); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	if got := strings.TrimSpace(strings.TrimPrefix(buf.String(), "\uFEFF")); got != "#,Name,Student ID,Email,Attended At" {
		t.Errorf("empty export = %q", got)
	}
}
