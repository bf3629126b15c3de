package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ListingDateLayout is the form dates take on the council listing page,
// e.g. "Wednesday, January 8, 2025".
const ListingDateLayout = "Monday, January 2, 2006"

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	ListingDateLayout,
}

// Date is a meeting date. It is written as RFC3339 and read from RFC3339,
// a bare YYYY-MM-DD, the listing text form, or epoch milliseconds (older
// manifests). A zero Date marshals as null.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date { return Date{Time: t} }

// ParseDate tries every accepted layout in order.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{Time: t}, nil
		}
	}
	return Date{}, fmt.Errorf("unrecognized date %q", s)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.UTC().Format(time.RFC3339))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	if b[0] != '"' {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("date: %w", err)
		}
		*d = Date{Time: time.UnixMilli(ms).UTC()}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
