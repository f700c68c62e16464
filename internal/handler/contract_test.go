package handler_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"
)

func compileContract(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()

	schemaPath, err := filepath.Abs(filepath.Join("testdata", "contracts", name))
	require.NoError(t, err)

	schema, err := jsonschema.NewCompiler().Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func validateContract(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	var payload interface{}
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestGradingResponsesMatchContracts(t *testing.T) {
	env := newTestEnv(t)
	course := env.seedCourse(t, 100)
	student := env.seedStudent(t, "Joko")
	instructorAuth := bearer(t, 100, "instructor")
	quizID := env.createQuiz(t, course.ID, 100, nil)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%d/submissions", quizID),
		env.answers(t, quizID, `"B"`, `true`, `["2"]`, `"essay"`), bearer(t, student.ID, "student"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	validateContract(t, compileContract(t, "submission.schema.json"), resp)

	var submitted envelope[struct {
		ID uint `json:"id"`
	}]
	decodeResponse(t, resp, &submitted)

	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assessments/%d/grades/bulk", quizID), map[string]interface{}{
		"entries": []map[string]interface{}{{"submission_id": submitted.Data.ID, "grade": 8.5}},
	}, instructorAuth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateContract(t, compileContract(t, "bulk_grade.schema.json"), resp)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/assessments/%d/statistics", quizID), nil, instructorAuth)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	validateContract(t, compileContract(t, "statistics.schema.json"), resp)
}
