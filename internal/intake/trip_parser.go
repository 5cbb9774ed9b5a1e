package intake

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TripRecord is one canonical fare event from the trip feed.
type TripRecord struct {
	RecordID      string
	Period        string
	CabNumber     string
	DriverLicense string
	PaymentType   string
	TripDate      time.Time
	Fare          decimal.Decimal
	Surcharge     decimal.Decimal
	Tips          decimal.Decimal
	Tolls         decimal.Decimal
	CardFee       decimal.Decimal
}

// NaturalKey is record-id plus reporting period; the same record id may
// recur across periods.
func (t TripRecord) NaturalKey() string {
	return t.RecordID + ":" + t.Period
}

type tripFeed struct {
	XMLName xml.Name  `xml:"TripFeed"`
	Period  string    `xml:"period,attr"`
	Trips   []tripRow `xml:"Trip"`
}

type tripRow struct {
	RecordID      string `xml:"RecordID"`
	CabNumber     string `xml:"CabNumber"`
	DriverLicense string `xml:"DriverLicense"`
	PaymentType   string `xml:"PaymentType"`
	TripDate      string `xml:"TripDate"`
	Fare          string `xml:"Fare"`
	Surcharge     string `xml:"Surcharge"`
	Tips          string `xml:"Tips"`
	Tolls         string `xml:"Tolls"`
	CardFee       string `xml:"CardFee"`
}

// ParseTripFeed decodes a trip feed document. The error return is reserved
// for an undecodable document; bad rows land in the RowError slice.
func ParseTripFeed(r io.Reader) ([]TripRecord, []RowError, error) {
	var feed tripFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, nil, fmt.Errorf("decode trip feed: %w", err)
	}

	records := make([]TripRecord, 0, len(feed.Trips))
	var rowErrs []RowError
	for i, row := range feed.Trips {
		record, err := canonicalTrip(feed.Period, row)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Key: row.RecordID, Err: err})
			continue
		}
		records = append(records, record)
	}
	return records, rowErrs, nil
}

func canonicalTrip(period string, row tripRow) (TripRecord, error) {
	recordID := strings.TrimSpace(row.RecordID)
	if recordID == "" {
		return TripRecord{}, fmt.Errorf("missing record id")
	}

	tripDate, err := parseDate(row.TripDate)
	if err != nil {
		return TripRecord{}, err
	}

	record := TripRecord{
		RecordID:      recordID,
		Period:        strings.TrimSpace(period),
		CabNumber:     strings.TrimSpace(row.CabNumber),
		DriverLicense: strings.TrimSpace(row.DriverLicense),
		PaymentType:   strings.ToLower(strings.TrimSpace(row.PaymentType)),
		TripDate:      tripDate,
	}

	for _, field := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"fare", row.Fare, &record.Fare},
		{"surcharge", row.Surcharge, &record.Surcharge},
		{"tips", row.Tips, &record.Tips},
		{"tolls", row.Tolls, &record.Tolls},
		{"card_fee", row.CardFee, &record.CardFee},
	} {
		amount, err := parseAmount(field.raw)
		if err != nil {
			return TripRecord{}, fmt.Errorf("%s: %w", field.name, err)
		}
		*field.dst = amount
	}

	return record, nil
}
