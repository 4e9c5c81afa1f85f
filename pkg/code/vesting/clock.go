package vesting

import "time"

// Clock is the trusted time source used to decide which tranches are due
type Clock interface {
	Now() time.Time
}

// SystemClock reads the local system time
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
