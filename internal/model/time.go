package model

import (
	"fmt"
	"time"
)

// LocalTime renders as "YYYY-MM-DD HH:MM:SS" in JSON responses.
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if time.Time(t).IsZero() {
		return []byte("null"), nil
	}
	return []byte(fmt.Sprintf("%q", time.Time(t).Format(timeFormat))), nil
}

func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}
