// Package gradebook reads and writes the CSV grading template instructors download,
// fill in offline and upload again.
package gradebook

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
)

// ErrMalformed is returned for templates that cannot be parsed.
var ErrMalformed = errors.New("malformed gradebook")

// Header lists the template columns in order.
var Header = []string{
	"submission_id",
	"student_name",
	"student_email",
	"attempt_number",
	"current_grade",
	"new_grade",
	"feedback",
	"status",
	"submitted_at",
	"is_late",
	"days_late",
}

// Write renders rows as CSV with a header line. new_grade is always left blank.
func Write(w io.Writer, rows []dto.GradeExportRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}

	for _, row := range rows {
		current := ""
		if row.CurrentGrade != nil {
			current = formatGrade(*row.CurrentGrade)
		}
		record := []string{
			strconv.FormatUint(uint64(row.SubmissionID), 10),
			row.StudentName,
			row.StudentEmail,
			strconv.Itoa(row.AttemptNumber),
			current,
			"",
			row.Feedback,
			row.Status,
			row.SubmittedAt.UTC().Format(time.RFC3339),
			strconv.FormatBool(row.IsLate),
			strconv.Itoa(row.DaysLate),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// Parse reads a filled template and returns one entry per row with a new grade. Rows
// whose new_grade is blank are skipped. Only submission_id and new_grade are required
// columns; a non-blank feedback cell replaces the stored feedback.
func Parse(r io.Reader) ([]dto.BulkGradeEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}

	idColumn, ok := columns["submission_id"]
	if !ok {
		return nil, fmt.Errorf("%w: submission_id column is required", ErrMalformed)
	}
	gradeColumn, ok := columns["new_grade"]
	if !ok {
		return nil, fmt.Errorf("%w: new_grade column is required", ErrMalformed)
	}
	feedbackColumn, hasFeedback := columns["feedback"]

	var entries []dto.BulkGradeEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		line, _ := reader.FieldPos(0)

		gradeCell := cell(record, gradeColumn)
		if gradeCell == "" {
			continue
		}

		id, err := strconv.ParseUint(cell(record, idColumn), 10, 64)
		if err != nil || id == 0 {
			return nil, fmt.Errorf("%w: line %d: invalid submission_id %q", ErrMalformed, line, cell(record, idColumn))
		}

		grade, err := strconv.ParseFloat(gradeCell, 64)
		if err != nil || grade < 0 {
			return nil, fmt.Errorf("%w: line %d: invalid new_grade %q", ErrMalformed, line, gradeCell)
		}

		entry := dto.BulkGradeEntry{SubmissionID: uint(id), Grade: &grade}
		if hasFeedback {
			if feedback := cell(record, feedbackColumn); feedback != "" {
				entry.Feedback = &feedback
			}
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func cell(record []string, index int) string {
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}

func formatGrade(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
