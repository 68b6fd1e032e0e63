package services

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportAssessmentsCSV(t *testing.T) {
	conf := 71.5
	recs := []*AssessmentRecord{
		{
			ID:        "a1",
			CreatedAt: time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC),
			Result: AssessmentResult{
				Likelihood:           LikelihoodMedium,
				Score:                7,
				Reasons:              []string{"High fever reported", "Rash is very itchy"},
				AIConfidence:         &conf,
				AlternativeDiagnoses: []string{"eczema", "measles"},
			},
		},
		nil,
		{
			ID:        "a2",
			CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.FixedZone("X", 3600)),
			Result:    AssessmentResult{Likelihood: LikelihoodLow, Reasons: []string{}},
		},
	}
	b, err := ExportAssessmentsCSV(recs)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{"a1", "2024-05-02T10:30:00Z", "medium", "7", "71.50", "eczema; measles", "High fever reported; Rash is very itchy"}, rows[1])
	assert.Equal(t, []string{"a2", "2024-05-01T08:00:00Z", "low", "0", "", "", ""}, rows[2])
}

func TestExportAssessmentsCSVEmpty(t *testing.T) {
	b, err := ExportAssessmentsCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(exportHeader, ",")+"\n", string(b))
}
