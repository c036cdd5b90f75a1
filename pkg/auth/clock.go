package auth

import "time"

// Clock abstracts time for the verification engine so expiry, clock-skew,
// and cache-staleness logic can be tested deterministically. Production code
// uses [SystemClock].
type Clock interface {
	Now() time.Time
}

// SystemClock is the production [Clock] backed by the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
