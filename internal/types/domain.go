package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// occasionDateLayout is the wire format of an OccasionDate.
const occasionDateLayout = "2006-01-02"

// OccasionDate is a civil calendar date (no time, no zone). Only Month and
// Day drive recurrence; Year is the year of birth and is informational.
type OccasionDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseOccasionDate parses a YYYY-MM-DD string and rejects dates that do not
// exist on the calendar (e.g. 2023-02-29 or 1990-13-01).
func ParseOccasionDate(s string) (OccasionDate, error) {
	t, err := time.Parse(occasionDateLayout, strings.TrimSpace(s))
	if err != nil {
		return OccasionDate{}, fmt.Errorf("%s: %q is not a YYYY-MM-DD date", ErrCodeValidationInvalidDate, s)
	}
	return OccasionDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// String returns the date formatted as YYYY-MM-DD.
func (d OccasionDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero reports whether the date is unset.
func (d OccasionDate) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// MarshalJSON encodes the date as a "YYYY-MM-DD" string.
func (d OccasionDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a "YYYY-MM-DD" string.
func (d *OccasionDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOccasionDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Subject is a registered person whose birthday is scheduled. The record
// store owns it; the scheduling core only reads it.
type Subject struct {
	ID        string       `json:"id"`
	FirstName string       `json:"first_name"`
	LastName  string       `json:"last_name"`
	Birthday  OccasionDate `json:"birthday"`
	TimeZone  string       `json:"timezone"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// DisplayName is the name used in delivery text.
func (s *Subject) DisplayName() string {
	return s.FirstName + " " + s.LastName
}

// SubjectPatch carries the fields of a partial subject update. Nil fields
// are left unchanged.
type SubjectPatch struct {
	FirstName *string
	LastName  *string
	Birthday  *OccasionDate
	TimeZone  *string
}

// IsEmpty reports whether the patch changes nothing.
func (p SubjectPatch) IsEmpty() bool {
	return p.FirstName == nil && p.LastName == nil && p.Birthday == nil && p.TimeZone == nil
}

// Apply copies the non-nil patch fields onto s.
func (p SubjectPatch) Apply(s *Subject) {
	if p.FirstName != nil {
		s.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		s.LastName = *p.LastName
	}
	if p.Birthday != nil {
		s.Birthday = *p.Birthday
	}
	if p.TimeZone != nil {
		s.TimeZone = *p.TimeZone
	}
}
