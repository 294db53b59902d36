// Package tag defines logical time values and tags.
// A tag is a pair (timestamp, microstep) ordered lexicographically.
// Timestamps are nonnegative int64 nanoseconds; Forever is a reserved
// sentinel that compares greater than any finite time.
package tag

import (
	"fmt"
	"math"
)

// TimeValue is a time instant or duration in nanoseconds.
type TimeValue int64

// Forever is the reserved maximum time value.
const Forever TimeValue = math.MaxInt64

// Zero is the origin of logical time.
const Zero TimeValue = 0

// IsForever returns true if t is the Forever sentinel.
func (t TimeValue) IsForever() bool {
	return t == Forever
}

// Add returns t + d, saturating at Forever.
func (t TimeValue) Add(d TimeValue) TimeValue {
	if t.IsForever() || d.IsForever() {
		return Forever
	}
	if t > Forever-d {
		return Forever
	}
	return t + d
}

// Sub returns t - d. Forever minus anything finite is Forever.
func (t TimeValue) Sub(d TimeValue) TimeValue {
	if t.IsForever() {
		return Forever
	}
	return t - d
}

func (t TimeValue) String() string {
	if t.IsForever() {
		return "forever"
	}
	return fmt.Sprintf("%dns", int64(t))
}

// Tag is a logical time coordinate: a timestamp plus a microstep.
type Tag struct {
	Time      TimeValue
	Microstep uint32
}

// ForeverTag compares greater than any finite tag.
var ForeverTag = Tag{Time: Forever, Microstep: math.MaxUint32}

// New returns a tag at the given time with microstep zero.
func New(t TimeValue) Tag {
	return Tag{Time: t}
}

// Compare returns -1, 0, or 1 as t orders before, equal to, or after o.
// Order is lexicographic on (Time, Microstep).
func (t Tag) Compare(o Tag) int {
	switch {
	case t.Time < o.Time:
		return -1
	case t.Time > o.Time:
		return 1
	case t.Microstep < o.Microstep:
		return -1
	case t.Microstep > o.Microstep:
		return 1
	}
	return 0
}

// Before returns true if t orders strictly before o.
func (t Tag) Before(o Tag) bool {
	return t.Compare(o) < 0
}

// After returns true if t orders strictly after o.
func (t Tag) After(o Tag) bool {
	return t.Compare(o) > 0
}

func (t Tag) String() string {
	return fmt.Sprintf("(%s, %d)", t.Time, t.Microstep)
}
