package intake

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTollFeed(t *testing.T) {
	feed := strings.Join([]string{
		"tag_id,plate,plaza,posted_date,amount",
		"00412345601,t505123c,RFK Bridge,2025-03-10 06:15:00,6.94",
		"00412345601,T505123C,Queens Midtown,2025-03-10 18:40:00,$6.94",
	}, "\n")

	records, rowErrs, err := ParseTollFeed(strings.NewReader(feed))
	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "00412345601", first.TagID)
	assert.Equal(t, "T505123C", first.PlateNumber)
	assert.Equal(t, "RFK Bridge", first.Plaza)
	assert.Equal(t, time.Date(2025, 3, 10, 6, 15, 0, 0, time.UTC), first.PostedDate)
	assert.True(t, first.Amount.Equal(decimal.RequireFromString("6.94")))

	// Same tag crossing twice in one day stays two distinct records.
	assert.NotEqual(t, records[0].NaturalKey(), records[1].NaturalKey())
	assert.Equal(t, "00412345601:2025-03-10T06:15:00Z", first.NaturalKey())
}

func TestParseTollFeed_MissingRequiredColumn(t *testing.T) {
	feed := "tag_id,plate,plaza,amount\n00412345601,T505123C,RFK Bridge,6.94"

	_, _, err := ParseTollFeed(strings.NewReader(feed))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "posted_date")
}

func TestParseTollFeed_BadRowsReported(t *testing.T) {
	feed := strings.Join([]string{
		"tag_id,plate,plaza,posted_date,amount",
		",T505123C,RFK Bridge,2025-03-10,6.94",
		"00412345602,T505123C,RFK Bridge,2025-03-10,oops",
		"00412345603,T505123C,RFK Bridge,2025-03-10,6.94",
	}, "\n")

	records, rowErrs, err := ParseTollFeed(strings.NewReader(feed))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "00412345603", records[0].TagID)

	require.Len(t, rowErrs, 2)
	assert.Contains(t, rowErrs[1].Err.Error(), "amount")
}
