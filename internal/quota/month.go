package quota

import "time"

const monthKeyLayout = "2006-01"

// MonthKey returns the UTC calendar month of t as "YYYY-MM".
func MonthKey(t time.Time) string {
	return t.UTC().Format(monthKeyLayout)
}

// ResetAt returns the first instant of the UTC month following t.
func ResetAt(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
