package service

import (
	"time"

	repairdomain "github.com/bigapple/fleetops/internal/repair/domain"
	"github.com/shopspring/decimal"
)

var (
	tierOne   = decimal.NewFromInt(200)
	tierTwo   = decimal.NewFromInt(500)
	tierThree = decimal.NewFromInt(1000)
	tierFour  = decimal.NewFromInt(3000)

	rateTwo   = decimal.NewFromInt(100)
	rateThree = decimal.NewFromInt(200)
	rateFour  = decimal.NewFromInt(250)
	rateFive  = decimal.NewFromInt(300)

	roundingEpsilon = decimal.RequireFromString("0.01")
)

// WeeklyRate derives the weekly installment from the payment matrix. A
// principal at or under $200 is collected in a single installment.
func WeeklyRate(principal decimal.Decimal) decimal.Decimal {
	switch {
	case principal.LessThanOrEqual(tierOne):
		return principal
	case principal.LessThanOrEqual(tierTwo):
		return rateTwo
	case principal.LessThanOrEqual(tierThree):
		return rateThree
	case principal.LessThanOrEqual(tierFour):
		return rateFour
	default:
		return rateFive
	}
}

// ScheduleLine is one generated installment before persistence.
type ScheduleLine struct {
	WeekStart     time.Time
	WeekEnd       time.Time
	PaymentAmount decimal.Decimal
	PriorBalance  decimal.Decimal
	Balance       decimal.Decimal
}

// GenerateSchedule amortizes the principal into weekly lines starting at
// anchor. The final line absorbs the remainder so the lines sum to the
// principal exactly.
func GenerateSchedule(principal, weekly decimal.Decimal, anchor time.Time) ([]ScheduleLine, error) {
	if !principal.IsPositive() {
		return nil, repairdomain.ErrInvalidPrincipal
	}

	var lines []ScheduleLine
	remaining := principal
	weekStart := anchor
	for remaining.IsPositive() {
		amount := weekly
		if remaining.LessThanOrEqual(weekly) {
			amount = remaining
		}
		balance := remaining.Sub(amount)
		lines = append(lines, ScheduleLine{
			WeekStart:     weekStart,
			WeekEnd:       weekStart.AddDate(0, 0, 6),
			PaymentAmount: amount,
			PriorBalance:  remaining,
			Balance:       balance,
		})
		remaining = balance
		weekStart = weekStart.AddDate(0, 0, 7)
	}

	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.PaymentAmount)
	}
	if !total.Equal(principal) {
		return nil, repairdomain.ErrScheduleMismatch
	}

	return lines, nil
}

// paymentPeriodStart returns the Sunday anchoring the requested payment
// period, at midnight UTC.
func paymentPeriodStart(now time.Time, startWeek repairdomain.StartWeek) time.Time {
	now = now.UTC()
	sunday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, -int(now.Weekday()))
	if startWeek == repairdomain.StartWeekNext {
		return sunday.AddDate(0, 0, 7)
	}
	return sunday
}
