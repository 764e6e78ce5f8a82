package schedule

import "time"

// Clock supplies the current date for date-relative computations.
type Clock interface {
	Now() time.Time
	Today() Date
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Today returns the current UTC calendar day.
func (c SystemClock) Today() Date { return DateOf(c.Now()) }

// FixedClock always reports the same instant.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }

// Today returns the calendar day of the fixed instant.
func (c FixedClock) Today() Date { return DateOf(c.At) }
