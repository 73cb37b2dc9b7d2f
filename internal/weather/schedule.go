package weather

import "time"

// NextMETARDelay returns the time until the next :00 or :30 wall-clock
// boundary, rounded up to whole seconds and never less than one second.
func NextMETARDelay(now time.Time) time.Duration {
	now = now.UTC()

	var next time.Time
	if now.Minute() < 30 {
		next = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 30, 0, 0, time.UTC)
	} else {
		next = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC).Add(time.Hour)
	}

	// Rounded up so the timer never fires before the boundary
	delay := next.Sub(now)
	if rem := delay % time.Second; rem != 0 {
		delay += time.Second - rem
	}
	if delay < time.Second {
		delay = time.Second
	}
	return delay
}
