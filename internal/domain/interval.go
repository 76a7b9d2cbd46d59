package domain

import "fmt"

// Interval is a candle bucket width.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

var intervalSeconds = map[Interval]int64{
	Interval1m:  60,
	Interval5m:  300,
	Interval15m: 900,
	Interval1h:  3600,
	Interval4h:  14400,
	Interval1d:  86400,
}

// AllIntervals returns the supported intervals in ascending width order.
func AllIntervals() []Interval {
	return []Interval{Interval1m, Interval5m, Interval15m, Interval1h, Interval4h, Interval1d}
}

// ParseInterval accepts only the six supported interval tokens.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalSeconds[iv]; !ok {
		return "", fmt.Errorf("unknown interval %q", s)
	}
	return iv, nil
}

// Seconds returns the bucket width; zero for an invalid interval.
func (i Interval) Seconds() int64 { return intervalSeconds[i] }

// Floor truncates ts (unix seconds) to the start of its bucket.
func (i Interval) Floor(ts int64) int64 {
	secs := intervalSeconds[i]
	if secs == 0 {
		return ts
	}
	return (ts / secs) * secs
}

func (i Interval) String() string { return string(i) }
