package domain

import "time"

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock pins time for deterministic tests.
type FixedClock struct {
	FixedTime time.Time
}

func (f FixedClock) Now() time.Time { return f.FixedTime }
