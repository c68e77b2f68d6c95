package activity

import (
	"encoding/json"
	"strings"
	"time"
)

// minPlausibleYear rejects placeholder dates such as 1900-01-01 or 0001-01-01.
const minPlausibleYear = 2000

var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ParseDate turns a payload value into a time. It reports false for
// missing, unparseable or implausible (year <= 2000) values.
func ParseDate(v any) (time.Time, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case time.Time:
		return val, val.Year() > minPlausibleYear
	default:
		return time.Time{}, false
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() <= minPlausibleYear {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
