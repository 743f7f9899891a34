package scheduler

import "time"

// fixedRateSchedule fires at first, first+interval, first+2*interval, ...
// Asked for the next activation after a missed window it returns the next
// point on the original grid, so a late scheduler fires once and then keeps
// the rate instead of replaying every missed tick.
type fixedRateSchedule struct {
	first    time.Time
	interval time.Duration
}

func (s fixedRateSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}

	ticks := t.Sub(s.first)/s.interval + 1

	return s.first.Add(ticks * s.interval)
}
