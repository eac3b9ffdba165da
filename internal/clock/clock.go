package clock

import "time"

// Clock abstracts time so billing dates and identifier buckets are testable.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
