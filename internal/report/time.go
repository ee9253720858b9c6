package report

import "time"

// FormatTimestamp returns t as an RFC 3339 UTC timestamp with millisecond
// precision, the form used in every report.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
