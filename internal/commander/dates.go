package commander

import (
	"fmt"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var dateLayouts = []string{isoDate, "02/01/2006", "2/1/2006", "02-01-2006", "2-1-2006"}

// ParseDate normalizes a user or model supplied date to YYYY-MM-DD. Two-digit years are
// read as 20YY.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty date")
	}
	if t, ok := parseShortYear(s); ok {
		return t.Format(isoDate), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), nil
		}
	}
	// Full timestamps collapse to their date part.
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.Format(isoDate), nil
	}
	return "", fmt.Errorf("unrecognized date %q", s)
}

// parseShortYear handles DD/MM/YY and DD-MM-YY.
func parseShortYear(s string) (time.Time, bool) {
	sep := "/"
	if strings.Count(s, "-") == 2 {
		sep = "-"
	}
	parts := strings.Split(s, sep)
	if len(parts) != 3 || len(parts[2]) != 2 {
		return time.Time{}, false
	}
	t, err := time.Parse("2"+sep+"1"+sep+"2006", parts[0]+sep+parts[1]+sep+"20"+parts[2])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatBR renders a YYYY-MM-DD date as DD/MM/YYYY, returning the input unchanged when it
// does not parse.
func FormatBR(date string) string {
	t, err := time.Parse(isoDate, date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}

// Today returns the calendar date of now in loc, as YYYY-MM-DD.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(isoDate)
}

func addDays(date string, days int) string {
	t, err := time.Parse(isoDate, date)
	if err != nil {
		return date
	}
	return t.AddDate(0, 0, days).Format(isoDate)
}
