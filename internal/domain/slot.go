package domain

import "time"

// Slot is one bookable opportunity returned by the availability feed.
// Date is midnight of the calendar day in the feed's time zone; Start and End
// are offsets from that midnight.
type Slot struct {
	Key      string        `json:"key"`
	Date     time.Time     `json:"date"`
	Start    time.Duration `json:"start"`
	End      time.Duration `json:"end"`
	Capacity int           `json:"parts"`
}

// StartsAt is the absolute start of the slot.
func (s Slot) StartsAt() time.Time { return s.Date.Add(s.Start) }
