package protocol

import (
	"fmt"
	"time"
)

const (
	// NotSetHour marks a random mode without a schedule.
	NotSetHour = 255

	randommodeLen = 13
)

// Randommode is the random on/off schedule of the bulb.
type Randommode struct {
	StartingHour   uint8 `json:"starting_hour"`
	StartingMinute uint8 `json:"starting_minute"`
	EndingHour     uint8 `json:"ending_hour"`
	EndingMinute   uint8 `json:"ending_minute"`
	MinInterval    uint8 `json:"min_interval"`
	MaxInterval    uint8 `json:"max_interval"`
	Color          Color `json:"color"`
}

// DecodeRandommode reads the schedule from bytes 3-8 and the color from
// bytes 9-12. Bytes 0-2 carry the write-time clock and are ignored.
func DecodeRandommode(b []byte) (Randommode, error) {
	if err := need("randommode", b, randommodeLen); err != nil {
		return Randommode{}, err
	}
	c, _ := DecodeColor(b[9:randommodeLen])
	return Randommode{
		StartingHour:   b[3],
		StartingMinute: b[4],
		EndingHour:     b[5],
		EndingMinute:   b[6],
		MinInterval:    b[7],
		MaxInterval:    b[8],
		Color:          c,
	}, nil
}

// Scheduled reports whether a start time is set.
func (r Randommode) Scheduled() bool {
	return r.StartingHour != NotSetHour
}

// Start renders the start time, or N/A when no schedule is set.
func (r Randommode) Start() string {
	if !r.Scheduled() {
		return "N/A"
	}
	return fmt.Sprintf("%02d:%02d", r.StartingHour, r.StartingMinute)
}

// End renders the end time. It follows the start sentinel.
func (r Randommode) End() string {
	if !r.Scheduled() {
		return "N/A"
	}
	return fmt.Sprintf("%02d:%02d", r.EndingHour, r.EndingMinute)
}

// Encode returns the 13-byte write: now as second, minute, hour, then the
// schedule and interval bytes, then the color.
func (r Randommode) Encode(now time.Time) []byte {
	out := make([]byte, 0, randommodeLen)
	out = append(out,
		byte(now.Second()),
		byte(now.Minute()),
		byte(now.Hour()),
		r.StartingHour,
		r.StartingMinute,
		r.EndingHour,
		r.EndingMinute,
		r.MinInterval,
		r.MaxInterval,
	)
	return append(out, r.Color.Encode()...)
}

func (r Randommode) String() string {
	return fmt.Sprintf("Randommode(start=%s, stop=%s, min=%d, max=%d, color=%s)",
		r.Start(), r.End(), r.MinInterval, r.MaxInterval, r.Color)
}
