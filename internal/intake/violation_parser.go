package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ViolationRecord is one canonical parking summons from the violation feed.
type ViolationRecord struct {
	SummonsNumber string
	PlateNumber   string
	State         string
	IssueDate     time.Time
	Fine          decimal.Decimal
	Penalty       decimal.Decimal
	Reduction     decimal.Decimal
}

func (v ViolationRecord) NaturalKey() string {
	return v.SummonsNumber
}

// ParseViolationFeed decodes the summons CSV. Expected header:
// summons_number,plate,state,issue_date,fine,penalty,reduction
func ParseViolationFeed(r io.Reader) ([]ViolationRecord, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read violation feed header: %w", err)
	}
	cols, err := columnIndex(header, []string{"summons_number", "plate", "issue_date", "fine"})
	if err != nil {
		return nil, nil, err
	}

	var (
		records []ViolationRecord
		rowErrs []RowError
		rowNum  int
	)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Err: err})
			continue
		}

		record, err := canonicalViolation(cols, row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Key: cell(row, cols, "summons_number"), Err: err})
			continue
		}
		records = append(records, record)
	}
	return records, rowErrs, nil
}

func canonicalViolation(cols map[string]int, row []string) (ViolationRecord, error) {
	summons := strings.TrimSpace(cell(row, cols, "summons_number"))
	if summons == "" {
		return ViolationRecord{}, fmt.Errorf("missing summons number")
	}

	issueDate, err := parseDate(cell(row, cols, "issue_date"))
	if err != nil {
		return ViolationRecord{}, err
	}

	fine, err := parseAmount(cell(row, cols, "fine"))
	if err != nil {
		return ViolationRecord{}, fmt.Errorf("fine: %w", err)
	}
	penalty, err := parseAmount(cell(row, cols, "penalty"))
	if err != nil {
		return ViolationRecord{}, fmt.Errorf("penalty: %w", err)
	}
	reduction, err := parseAmount(cell(row, cols, "reduction"))
	if err != nil {
		return ViolationRecord{}, fmt.Errorf("reduction: %w", err)
	}

	return ViolationRecord{
		SummonsNumber: summons,
		PlateNumber:   strings.ToUpper(strings.TrimSpace(cell(row, cols, "plate"))),
		State:         strings.ToUpper(strings.TrimSpace(cell(row, cols, "state"))),
		IssueDate:     issueDate,
		Fine:          fine,
		Penalty:       penalty,
		Reduction:     reduction,
	}, nil
}

func columnIndex(header []string, required []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}
	return cols, nil
}

// cell tolerates absent optional columns and short rows.
func cell(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
