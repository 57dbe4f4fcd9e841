package ledger

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/ILLUVRSE/outfit-review/internal/models"
)

const (
	colDecisions   = "decisions"
	colReviewer    = "reviewer"
	colProcessedAt = "processed_at"
	colAcceptedAt  = "accepted_at"
)

// ProcessedColumns is the header of the processed ledger.
var ProcessedColumns = columnsWith(colDecisions, colReviewer, colProcessedAt)

// AcceptedColumns is the header of the accepted ledger.
var AcceptedColumns = columnsWith(colAcceptedAt)

func columnsWith(extra ...string) []string {
	cols := make([]string, 0, len(models.Categories)+len(extra))
	for _, cat := range models.Categories {
		cols = append(cols, string(cat))
	}
	return append(cols, extra...)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func combinationValues(c models.Combination, vals map[string]string) {
	for i, id := range c.IDs() {
		vals[string(models.Categories[i])] = id
	}
}

func combinationFromValues(vals map[string]string) models.Combination {
	ids := make([]string, len(models.Categories))
	for i, cat := range models.Categories {
		ids[i] = vals[string(cat)]
	}
	return models.CombinationOf(ids...)
}

func processedValues(r *models.ProcessedRecord) map[string]string {
	vals := make(map[string]string, len(ProcessedColumns))
	combinationValues(r.Combination, vals)
	vals[colDecisions] = r.Decisions.String()
	vals[colReviewer] = r.Reviewer
	vals[colProcessedAt] = formatTime(r.ProcessedAt)
	return vals
}

func processedFromValues(vals map[string]string) (models.ProcessedRecord, error) {
	decisions, err := models.ParseDecisionSet(vals[colDecisions])
	if err != nil {
		return models.ProcessedRecord{}, err
	}
	ts, err := parseTime(vals[colProcessedAt])
	if err != nil {
		return models.ProcessedRecord{}, fmt.Errorf("processed_at: %w", err)
	}
	return models.ProcessedRecord{
		Combination: combinationFromValues(vals),
		Decisions:   decisions,
		Reviewer:    vals[colReviewer],
		ProcessedAt: ts,
	}, nil
}

func acceptedValues(r *models.AcceptedRecord) map[string]string {
	vals := make(map[string]string, len(AcceptedColumns))
	combinationValues(r.Combination, vals)
	vals[colAcceptedAt] = formatTime(r.AcceptedAt)
	return vals
}

func acceptedFromValues(vals map[string]string) (models.AcceptedRecord, error) {
	ts, err := parseTime(vals[colAcceptedAt])
	if err != nil {
		return models.AcceptedRecord{}, fmt.Errorf("accepted_at: %w", err)
	}
	return models.AcceptedRecord{Combination: combinationFromValues(vals), AcceptedAt: ts}, nil
}

// encodeRow renders one newline-terminated CSV row in column order.
func encodeRow(columns []string, vals map[string]string) ([]byte, error) {
	fields := make([]string, len(columns))
	for i, col := range columns {
		fields[i] = vals[col]
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeRow parses one line against columns. Field count must match.
func decodeRow(columns []string, line string) (map[string]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = len(columns)
	fields, err := r.Read()
	if err != nil {
		return nil, err
	}
	vals := make(map[string]string, len(columns))
	for i, col := range columns {
		vals[col] = fields[i]
	}
	return vals, nil
}

// parseHeader reads a ledger header. The five category columns are
// required; the bare five-column layout of older ledgers is accepted.
func parseHeader(line string) ([]string, error) {
	fields, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		seen[f] = true
	}
	for _, cat := range models.Categories {
		if !seen[string(cat)] {
			return nil, fmt.Errorf("header missing column %q", cat)
		}
	}
	return fields, nil
}

func render(columns []string, rows []map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	head, err := encodeRow(columns, identityValues(columns))
	if err != nil {
		return nil, err
	}
	buf.Write(head)
	for _, vals := range rows {
		row, err := encodeRow(columns, vals)
		if err != nil {
			return nil, err
		}
		buf.Write(row)
	}
	return buf.Bytes(), nil
}

func identityValues(columns []string) map[string]string {
	vals := make(map[string]string, len(columns))
	for _, c := range columns {
		vals[c] = c
	}
	return vals
}

// RenderProcessed serialises records as a processed ledger CSV, header first.
func RenderProcessed(records []models.ProcessedRecord) ([]byte, error) {
	rows := make([]map[string]string, len(records))
	for i := range records {
		rows[i] = processedValues(&records[i])
	}
	return render(ProcessedColumns, rows)
}

// RenderAccepted serialises records as an accepted ledger CSV, header first.
func RenderAccepted(records []models.AcceptedRecord) ([]byte, error) {
	rows := make([]map[string]string, len(records))
	for i := range records {
		rows[i] = acceptedValues(&records[i])
	}
	return render(AcceptedColumns, rows)
}
