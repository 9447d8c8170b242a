// Package roster parses teacher-uploaded class lists. The input is whatever
// a spreadsheet export produced, so the parser is deliberately tolerant: it
// skips a header row, malformed lines and binary junk instead of failing.
package roster

import (
	"bufio"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"classpass/internal/attendance"
)

// Expected line format: name,studentId[,email]

var headerRow = regexp.MustCompile(`(?i)^(stt|name|id|email|mssv|student|họ|tên|mã)`)
var controlBytes = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)

// Result reports what the parse kept and dropped.
type Result struct {
	Students []attendance.StudentInfo
	Skipped  int
}

// Parse reads comma-separated roster lines. A first line that looks like a
// header is skipped, as is any line with control bytes, fewer than two
// fields, or implausibly short name/id values.
func Parse(r io.Reader) (Result, error) {
	var res Result
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lineNo++

		if lineNo == 1 && headerRow.MatchString(line) {
			res.Skipped++
			continue
		}
		if controlBytes.MatchString(line) {
			res.Skipped++
			continue
		}

		fields := splitFields(line)
		if len(fields) < 2 {
			res.Skipped++
			continue
		}
		name, studentID := fields[0], fields[1]
		email := ""
		if len(fields) > 2 {
			email = fields[2]
		}
		if len(name) < 2 || len(studentID) < 2 {
			res.Skipped++
			continue
		}

		res.Students = append(res.Students, attendance.StudentInfo{
			ID:        uuid.NewString(),
			Name:      name,
			StudentID: studentID,
			Email:     email,
		})
	}
	if err := scanner.Err(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// splitFields splits on commas, trims whitespace and surrounding quotes, and
// drops empty cells.
func splitFields(line string) []string {
	parts := strings.Split(line, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `"'`)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
