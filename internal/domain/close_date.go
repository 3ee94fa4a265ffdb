package domain

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

const closeDateLayout = "2006-01-02"

var closeDateLayouts = []string{
	closeDateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
}

// CloseDate is an optional calendar date. Invalid input decodes to an absent date rather
// than an error so one bad CRM field never fails a batch.
type CloseDate struct {
	Time  time.Time
	Valid bool
}

// NewCloseDate returns a valid close date at midnight UTC
func NewCloseDate(year int, month time.Month, day int) CloseDate {
	return CloseDate{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}

// ParseCloseDate tries the known layouts and returns an absent date when none match
func ParseCloseDate(s string) CloseDate {
	s = strings.TrimSpace(s)
	if s == "" {
		return CloseDate{}
	}
	for _, layout := range closeDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return CloseDate{
				Time:  time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
				Valid: true,
			}
		}
	}
	return CloseDate{}
}

// String returns the ISO date or an empty string
func (d CloseDate) String() string {
	if !d.Valid {
		return ""
	}
	return d.Time.Format(closeDateLayout)
}

// MarshalJSON encodes absent dates as null
func (d CloseDate) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON never returns an error; unparseable values become absent dates
func (d *CloseDate) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var raw string
	if bytes.Equal(data, []byte("null")) || json.Unmarshal(data, &raw) != nil {
		*d = CloseDate{}
		return nil
	}
	*d = ParseCloseDate(raw)
	return nil
}
