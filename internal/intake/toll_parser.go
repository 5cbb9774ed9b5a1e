package intake

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TollRecord is one canonical toll posting from the EZPass feed.
type TollRecord struct {
	TagID       string
	PlateNumber string
	Plaza       string
	PostedDate  time.Time
	Amount      decimal.Decimal
}

// NaturalKey combines tag and posting timestamp; the feed has no single
// unique column.
func (t TollRecord) NaturalKey() string {
	return t.TagID + ":" + t.PostedDate.UTC().Format(time.RFC3339)
}

// ParseTollFeed decodes the toll CSV. Expected header:
// tag_id,plate,plaza,posted_date,amount
func ParseTollFeed(r io.Reader) ([]TollRecord, []RowError, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read toll feed header: %w", err)
	}
	cols, err := columnIndex(header, []string{"tag_id", "plate", "posted_date", "amount"})
	if err != nil {
		return nil, nil, err
	}

	var (
		records []TollRecord
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

		record, err := canonicalToll(cols, row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: rowNum, Key: cell(row, cols, "tag_id"), Err: err})
			continue
		}
		records = append(records, record)
	}
	return records, rowErrs, nil
}

func canonicalToll(cols map[string]int, row []string) (TollRecord, error) {
	tagID := strings.TrimSpace(cell(row, cols, "tag_id"))
	if tagID == "" {
		return TollRecord{}, fmt.Errorf("missing tag id")
	}

	postedDate, err := parseDate(cell(row, cols, "posted_date"))
	if err != nil {
		return TollRecord{}, err
	}

	amount, err := parseAmount(cell(row, cols, "amount"))
	if err != nil {
		return TollRecord{}, fmt.Errorf("amount: %w", err)
	}

	return TollRecord{
		TagID:       tagID,
		PlateNumber: strings.ToUpper(strings.TrimSpace(cell(row, cols, "plate"))),
		Plaza:       strings.TrimSpace(cell(row, cols, "plaza")),
		PostedDate:  postedDate,
		Amount:      amount,
	}, nil
}
