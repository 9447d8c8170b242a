package attendance

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
)

// exportTimeLayout matches the spreadsheet-friendly format the teacher
// dashboard exports.
const exportTimeLayout = "02/01/2006 15:04:05"

var exportHeader = []string{"#", "Name", "Student ID", "Email", "Attended At"}

// ExportCSV writes a session's records as CSV with a fixed column order,
// newest first. A UTF-8 BOM is prepended so spreadsheet apps detect the
// encoding.
func ExportCSV(w io.Writer, records []Record) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}

	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].AttendedAt.After(sorted[j].AttendedAt)
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for i, rec := range sorted {
		row := []string{
			strconv.Itoa(i + 1),
			rec.StudentName,
			rec.StudentID,
			rec.StudentEmail,
			rec.AttendedAt.Format(exportTimeLayout),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
