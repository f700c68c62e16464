package gradebook

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
)

func TestWriteThenParseRoundTrip(t *testing.T) {
	current := 72.5
	rows := []dto.GradeExportRow{
		{
			SubmissionID:  4,
			StudentName:   "Ada, Lovelace",
			StudentEmail:  "ada@example.com",
			AttemptNumber: 1,
			CurrentGrade:  &current,
			Feedback:      "solid work",
			Status:        "graded",
			SubmittedAt:   time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		},
		{
			SubmissionID:  9,
			StudentName:   "Grace Hopper",
			StudentEmail:  "grace@example.com",
			AttemptNumber: 2,
			Status:        "submitted",
			SubmittedAt:   time.Date(2024, 5, 3, 9, 30, 0, 0, time.UTC),
			IsLate:        true,
			DaysLate:      2,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, strings.Join(Header, ","), lines[0])
	require.Contains(t, lines[1], `"Ada, Lovelace"`)
	require.Contains(t, lines[1], ",72.5,,")

	// Nothing filled in yet.
	entries, err := Parse(strings.NewReader(buf.String()))
	require.NoError(t, err)
	require.Empty(t, entries)

	filled := strings.Replace(buf.String(), ",72.5,,", ",72.5,80,", 1)
	entries, err = Parse(strings.NewReader(filled))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, uint(4), entries[0].SubmissionID)
	require.Equal(t, 80.0, *entries[0].Grade)
	require.NotNil(t, entries[0].Feedback)
	require.Equal(t, "solid work", *entries[0].Feedback)
}

func TestParseMinimalColumns(t *testing.T) {
	input := "new_grade,submission_id\n10,1\n,2\n7.5,3\n"

	entries, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, uint(1), entries[0].SubmissionID)
	require.Nil(t, entries[0].Feedback)
	require.Equal(t, uint(3), entries[1].SubmissionID)
	require.Equal(t, 7.5, *entries[1].Grade)
}

func TestParseRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"missing header":    "",
		"missing id column": "new_grade\n10\n",
		"bad id":            "submission_id,new_grade\nabc,10\n",
		"bad grade":         "submission_id,new_grade\n1,ten\n",
		"negative grade":    "submission_id,new_grade\n1,-5\n",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(input))
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestParseNamesTheLine(t *testing.T) {
	input := "submission_id,new_grade\n1,10\n2,oops\n"

	_, err := Parse(strings.NewReader(input))
	require.ErrorIs(t, err, ErrMalformed)
	require.Contains(t, err.Error(), "line 3")
}
