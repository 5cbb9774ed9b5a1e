// Package intake converts vendor feed payloads into canonical rows. Parsers
// are pure: malformed rows are reported per row and never abort the feed.
package intake

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RowError describes one unparseable feed row.
type RowError struct {
	Row int
	Key string
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%s): %v", e.Row, e.Key, e.Err)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(strings.ReplaceAll(raw, "$", ""))
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}
