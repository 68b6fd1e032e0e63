package services

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"strings"
	"time"
)

var exportHeader = []string{"id", "created_at", "likelihood", "score", "ai_confidence", "alternative_diagnoses", "reasons"}

// ExportAssessmentsCSV renders one row per record in the given order.
// Multi-valued cells are joined with "; ".
func ExportAssessmentsCSV(recs []*AssessmentRecord) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, r := range recs {
		if r == nil {
			continue
		}
		conf := ""
		if r.Result.AIConfidence != nil {
			conf = strconv.FormatFloat(*r.Result.AIConfidence, 'f', 2, 64)
		}
		rec := []string{
			r.ID,
			r.CreatedAt.UTC().Format(time.RFC3339),
			string(r.Result.Likelihood),
			strconv.Itoa(r.Result.Score),
			conf,
			strings.Join(r.Result.AlternativeDiagnoses, "; "),
			strings.Join(r.Result.Reasons, "; "),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
