package guideline

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day. The zero value means the publication date is unknown.
type Date struct {
	t time.Time
}

var UnknownDate = Date{}

func NewDate(t time.Time) Date {
	if t.IsZero() {
		return UnknownDate
	}
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate reads the storage form produced by String.
func ParseDate(value string) (Date, error) {
	if value == "" || value == "unknown" {
		return UnknownDate, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return UnknownDate, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return NewDate(t), nil
}

func (d Date) IsUnknown() bool {
	return d.t.IsZero()
}

func (d Date) Time() time.Time {
	return d.t
}

// Year returns 0 for an unknown date.
func (d Date) Year() int {
	if d.IsUnknown() {
		return 0
	}
	return d.t.Year()
}

func (d Date) String() string {
	if d.IsUnknown() {
		return "unknown"
	}
	return d.t.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = UnknownDate
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
