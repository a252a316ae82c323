// Package occasion computes when a yearly occasion next fires. It is pure:
// the reference instant is always passed in.
package occasion

import (
	"fmt"
	"time"
	// The provided.al2023 Lambda runtime ships without /usr/share/zoneinfo.
	_ "time/tzdata"

	"occasions/internal/types"
)

// DeliveryHour is the local wall-clock hour at which occasions fire.
const DeliveryHour = 9

// LoadZone resolves an IANA zone name. The empty string and "Local" are
// rejected because the loader would silently map them to UTC or to the host
// zone.
func LoadZone(zone string) (*time.Location, error) {
	if zone == "" || zone == "Local" {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidTimezone,
			fmt.Sprintf("time zone %q is not an IANA zone name", zone), nil)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidTimezone,
			fmt.Sprintf("unknown time zone %q", zone), err)
	}
	return loc, nil
}

// NextOccurrence returns the first instant strictly after ref at which the
// wall clock in zone reads 09:00:00 on the occasion's month and day. The
// result is in UTC.
//
// Each candidate year is built against that year's offset rules, so the
// answer tracks DST and historical offset changes. A Feb 29 occasion in a
// non-leap year lands on March 1.
func NextOccurrence(date types.OccasionDate, zone string, ref time.Time) (time.Time, error) {
	loc, err := LoadZone(zone)
	if err != nil {
		return time.Time{}, err
	}

	year := ref.In(loc).Year()
	at := time.Date(year, date.Month, date.Day, DeliveryHour, 0, 0, 0, loc)
	if !at.After(ref) {
		at = time.Date(year+1, date.Month, date.Day, DeliveryHour, 0, 0, 0, loc)
	}
	return at.UTC(), nil
}
