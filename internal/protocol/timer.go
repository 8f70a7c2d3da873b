package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TimerType is the action a timer slot performs.
type TimerType uint8

const (
	TimerWakeup TimerType = 0
	TimerDoze   TimerType = 1
	TimerOff    TimerType = 2
)

var timerNames = map[TimerType]string{
	TimerWakeup: "wakeup",
	TimerDoze:   "doze",
	TimerOff:    "off",
}

// TimerTypeFromCode maps a wire code to a TimerType. Unknown codes are TimerOff.
func TimerTypeFromCode(code byte) TimerType {
	t := TimerType(code)
	if _, ok := timerNames[t]; ok {
		return t
	}
	return TimerOff
}

// ParseTimerType resolves a case-insensitive timer type name.
func ParseTimerType(name string) (TimerType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range timerNames {
		if n == name {
			return t, true
		}
	}
	return TimerOff, false
}

func (t TimerType) Code() byte { return byte(t) }

func (t TimerType) String() string {
	if n, ok := timerNames[t]; ok {
		return strings.ToUpper(n)
	}
	return fmt.Sprintf("TimerType(%d)", uint8(t))
}

func (t TimerType) MarshalText() ([]byte, error) {
	return []byte(timerNames[TimerTypeFromCode(byte(t))]), nil
}

func (t *TimerType) UnmarshalText(text []byte) error {
	v, ok := ParseTimerType(string(text))
	if !ok {
		return fmt.Errorf("unknown timer type %q", text)
	}
	*t = v
	return nil
}

const (
	// TimerSlots is the number of timer slots on the device.
	TimerSlots = 4
	// InactiveHour marks a timer slot without a schedule.
	InactiveHour = -1

	timerEncodeLen = 13
	timerStride    = 3
	timerRunStride = 5

	timersLen        = 14 // 4 slots * 3 bytes, then current hour and minute
	runningTimersLen = TimerSlots * timerRunStride
	clockHourOffset  = 12
	clockMinOffset   = 13

	inactiveFlag = 0xFF
)

// SlotIndex normalizes any id into [0, TimerSlots). Out-of-range ids alias.
func SlotIndex(id int) int {
	return ((id % TimerSlots) + TimerSlots) % TimerSlots
}

// Timer is one of the device's timer slots.
type Timer struct {
	ID             int       `json:"id"`
	Type           TimerType `json:"type"`
	StartingHour   int       `json:"starting_hour"`
	StartingMinute uint8     `json:"starting_minute"`
	Runtime        uint8     `json:"runtime"`
	Color          Color     `json:"color"`
}

// Active reports whether the slot has a schedule.
func (t Timer) Active() bool {
	return t.StartingHour != InactiveHour
}

// Slot returns the normalized slot index.
func (t Timer) Slot() int {
	return SlotIndex(t.ID)
}

// Schedule renders the start time as HH:MM, or N/A for an inactive slot.
func (t Timer) Schedule() string {
	if !t.Active() {
		return "N/A"
	}
	return fmt.Sprintf("%02d:%02d", t.StartingHour, t.StartingMinute)
}

// Encode returns the 13-byte timer-settings write for this slot. The clock
// bytes come from now.
func (t Timer) Encode(now time.Time) []byte {
	flag := byte(0)
	if !t.Active() {
		flag = inactiveFlag
	}
	out := make([]byte, 0, timerEncodeLen)
	out = append(out,
		byte(t.Slot()),
		t.Type.Code(),
		byte(now.Second()),
		byte(now.Minute()),
		byte(now.Hour()),
		flag,
		t.StartingMinute,
		hourByte(t.StartingHour),
	)
	out = append(out, t.Color.Encode()...)
	return append(out, t.Runtime)
}

func (t Timer) String() string {
	return fmt.Sprintf("Timer(id=%d, active=%t, type=%s, schedule=%s, runtime=%d, color=%s)",
		t.ID, t.Active(), t.Type, t.Schedule(), t.Runtime, t.Color)
}

func (t Timer) MarshalJSON() ([]byte, error) {
	type plain Timer
	return json.Marshal(struct {
		plain
		Active   bool   `json:"active"`
		Schedule string `json:"schedule"`
	}{plain(t), t.Active(), t.Schedule()})
}

// hourByte writes the -1 sentinel as 0xFF.
func hourByte(h int) byte {
	if h == InactiveHour {
		return inactiveFlag
	}
	return byte(h)
}

// Timers is the full set of timer slots plus the device clock at read time.
type Timers struct {
	Slots         [TimerSlots]Timer `json:"slots"`
	CurrentHour   uint8             `json:"current_hour"`
	CurrentMinute uint8             `json:"current_minute"`
}

// DecodeTimers builds all four slots from the timer-settings buffer (type,
// hour, minute per slot, clock at 12-13) and the running-timers buffer
// (color and runtime per slot).
func DecodeTimers(timerBytes, effectBytes []byte) (Timers, error) {
	if err := need("timers", timerBytes, timersLen); err != nil {
		return Timers{}, err
	}
	if err := need("running timers", effectBytes, runningTimersLen); err != nil {
		return Timers{}, err
	}

	ts := Timers{
		CurrentHour:   timerBytes[clockHourOffset],
		CurrentMinute: timerBytes[clockMinOffset],
	}
	for i := 0; i < TimerSlots; i++ {
		tb := timerBytes[i*timerStride:]
		eb := effectBytes[i*timerRunStride:]

		hour := int(tb[1])
		if tb[1] == inactiveFlag {
			hour = InactiveHour
		}
		c, _ := DecodeColor(eb[:colorLen])
		ts.Slots[i] = Timer{
			ID:             i,
			Type:           TimerTypeFromCode(tb[0]),
			StartingHour:   hour,
			StartingMinute: tb[2],
			Runtime:        eb[4],
			Color:          c,
		}
	}
	return ts, nil
}

// Timer returns the slot for id, modulo TimerSlots.
func (ts Timers) Timer(id int) Timer {
	return ts.Slots[SlotIndex(id)]
}

// WithTimer returns a copy with t stored in slot t.ID modulo TimerSlots.
// The other slots and the clock fields are unchanged.
func (ts Timers) WithTimer(t Timer) Timers {
	ts.Slots[t.Slot()] = t
	return ts
}

func (ts Timers) String() string {
	parts := make([]string, 0, TimerSlots)
	for _, t := range ts.Slots {
		parts = append(parts, t.String())
	}
	return fmt.Sprintf("Timers(time=%02d:%02d, %s)", ts.CurrentHour, ts.CurrentMinute, strings.Join(parts, ", "))
}
