package service

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"guild-bot/internal/model"
)

// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
var ErrInvalidDate = errors.New("invalid date")

// Calendar turns the clock into per-user local calendar dates.
type Calendar struct {
	clock    clockwork.Clock
	fallback *time.Location
}

// NewCalendar creates a Calendar. Dates for users without a usable timezone
// are computed in fallbackTZ, or in the server's local zone when that is
// empty or invalid.
func NewCalendar(clock clockwork.Clock, fallbackTZ string) *Calendar {
	loc := time.Local
	if fallbackTZ != "" {
		l, err := time.LoadLocation(fallbackTZ)
		if err != nil {
			log.Warn().Err(err).Str("timezone", fallbackTZ).Msg("Invalid fallback timezone, using server local time")
		} else {
			loc = l
		}
	}
	return &Calendar{clock: clock, fallback: loc}
}

// Location resolves an IANA timezone name, degrading to the fallback zone.
func (c *Calendar) Location(tz string) *time.Location {
	if tz == "" {
		return c.fallback
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Warn().Err(err).Str("timezone", tz).Msg("Invalid user timezone, using server time")
		return c.fallback
	}
	return loc
}

// Today returns the current date in tz as YYYY-MM-DD.
func (c *Calendar) Today(tz string) string {
	return c.clock.Now().In(c.Location(tz)).Format(model.DateLayout)
}

// Yesterday returns the date before Today(tz). The shift is done on the
// calendar date, so a local midnight skipped by DST cannot move it.
func (c *Calendar) Yesterday(tz string) string {
	y, m, d := c.clock.Now().In(c.Location(tz)).Date()
	return time.Date(y, m, d-1, 0, 0, 0, 0, time.UTC).Format(model.DateLayout)
}

// Now returns the calendar's clock time.
func (c *Calendar) Now() time.Time {
	return c.clock.Now()
}

// ShiftDate moves a YYYY-MM-DD date by days.
func ShiftDate(date string, days int) (string, error) {
	t, err := time.Parse(model.DateLayout, date)
	if err != nil {
		return "", ErrInvalidDate
	}
	return t.AddDate(0, 0, days).Format(model.DateLayout), nil
}
