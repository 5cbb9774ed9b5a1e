package service

import "time"

// PayWindow computes the most recent 7-day pay window for a driver. The
// start is the latest occurrence of payDay at the anchor hour that is not
// after ref; the end is one minute short of the next window.
func PayWindow(ref time.Time, payDay time.Weekday, hour int) (time.Time, time.Time) {
	ref = ref.UTC()

	daysDelta := (int(ref.Weekday()) - int(payDay) + 7) % 7
	start := time.Date(ref.Year(), ref.Month(), ref.Day(), hour, 0, 0, 0, time.UTC).
		AddDate(0, 0, -daysDelta)
	if start.After(ref) {
		start = start.AddDate(0, 0, -7)
	}

	end := start.AddDate(0, 0, 7).Add(-time.Minute)
	return start, end
}
