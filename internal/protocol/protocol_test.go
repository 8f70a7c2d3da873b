package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestColorRoundTrip(t *testing.T) {
	for v := 0; v < 256; v++ {
		b := uint8(v)
		c := Color{White: b, Red: 255 - b, Green: b / 2, Blue: b ^ 0x5A}
		got, err := DecodeColor(c.Encode())
		if err != nil {
			t.Fatal(err)
		}
		if got != c {
			t.Fatalf("decode(encode(%v)) = %v", c, got)
		}
	}
}

func TestColorChannelOrder(t *testing.T) {
	c, err := DecodeColor([]byte{0x01, 0x02, 0x03, 0x04})
	if err != nil {
		t.Fatal(err)
	}
	want := Color{White: 1, Red: 2, Green: 3, Blue: 4}
	if c != want {
		t.Errorf("color = %v, want %v", c, want)
	}
	if c.Hex() != "#01020304" {
		t.Errorf("hex = %q", c.Hex())
	}
}

func TestDecodeColorShort(t *testing.T) {
	_, err := DecodeColor([]byte{1, 2, 3})
	if !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("err = %v, want ErrMalformedRecord", err)
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    Color
		wantErr bool
	}{
		{in: "255,0,0,0", want: Color{White: 255}},
		{in: " 1, 2 ,3,4 ", want: Color{1, 2, 3, 4}},
		{in: "#00FF8010", want: Color{0, 255, 128, 16}},
		{in: "00ff8010", want: Color{0, 255, 128, 16}},
		{in: "1,2,3", wantErr: true},
		{in: "256,0,0,0", wantErr: true},
		{in: "#FF0000", wantErr: true},
		{in: "#GG000000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseColor(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseColor(%q) = %v, want error", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseColor(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEffectRoundTrip(t *testing.T) {
	types := []EffectType{EffectBlink, EffectPulse, EffectDisco, EffectRainbow, EffectCandle, EffectOff}
	c := Color{White: 10, Red: 20, Green: 30, Blue: 40}
	for _, typ := range types {
		for d := 0; d < 256; d++ {
			e := Effect{Type: typ, Color: &c, Delay: uint8(d)}
			got, err := DecodeEffect(e.Encode())
			if err != nil {
				t.Fatal(err)
			}
			if got.Type != typ || got.Delay != uint8(d) || got.Color == nil || *got.Color != c {
				t.Fatalf("decode(encode(%v)) = %v", e, got)
			}
		}
	}
}

func TestEffectEncodeLayout(t *testing.T) {
	c := Color{White: 1, Red: 2, Green: 3, Blue: 4}
	got := Effect{Type: EffectRainbow, Color: &c, Delay: 25}.Encode()
	want := []byte{1, 2, 3, 4, 3, 0, 25, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("encode = %v, want %v", got, want)
	}

	got = Effect{Type: EffectCandle, Delay: 7}.Encode()
	want = []byte{0, 0, 0, 0, 4, 0, 7, 0}
	if !bytes.Equal(got, want) {
		t.Errorf("encode without color = %v, want %v", got, want)
	}
}

func TestDecodeEffectIgnoresReservedByte(t *testing.T) {
	e, err := DecodeEffect([]byte{0, 0, 0, 0, 1, 0xAB, 9})
	if err != nil {
		t.Fatal(err)
	}
	if e.Type != EffectPulse || e.Delay != 9 {
		t.Errorf("effect = %v", e)
	}
}

func TestEnumFallback(t *testing.T) {
	for code := 0; code < 256; code++ {
		et := EffectTypeFromCode(byte(code))
		if code <= 4 {
			if et != EffectType(code) {
				t.Errorf("effect code %d = %v", code, et)
			}
		} else if et != EffectOff {
			t.Errorf("effect code %d = %v, want OFF", code, et)
		}

		tt := TimerTypeFromCode(byte(code))
		if code <= 2 {
			if tt != TimerType(code) {
				t.Errorf("timer code %d = %v", code, tt)
			}
		} else if tt != TimerOff {
			t.Errorf("timer code %d = %v, want OFF", code, tt)
		}
	}
}

func TestEffectTypeText(t *testing.T) {
	var et EffectType
	if err := et.UnmarshalText([]byte("Rainbow")); err != nil {
		t.Fatal(err)
	}
	if et != EffectRainbow {
		t.Errorf("effect = %v, want RAINBOW", et)
	}
	if err := et.UnmarshalText([]byte("strobe")); err == nil {
		t.Error("expected error for unknown effect")
	}
	b, _ := EffectOff.MarshalText()
	if string(b) != "off" {
		t.Errorf("marshal = %q, want off", b)
	}
}

func TestTimerSentinel(t *testing.T) {
	now := time.Date(2024, 3, 1, 14, 5, 42, 0, time.UTC)
	inactive := Timer{ID: 1, Type: TimerOff, StartingHour: InactiveHour}
	if inactive.Active() {
		t.Error("timer with hour -1 reports active")
	}
	if inactive.Schedule() != "N/A" {
		t.Errorf("schedule = %q, want N/A", inactive.Schedule())
	}
	b := inactive.Encode(now)
	if b[5] != 0xFF || b[7] != 0xFF {
		t.Errorf("inactive flag/hour = %#x/%#x, want 0xff/0xff", b[5], b[7])
	}

	active := Timer{ID: 0, Type: TimerWakeup, StartingHour: 0, StartingMinute: 15}
	if !active.Active() {
		t.Error("timer with hour 0 reports inactive")
	}
	if active.Schedule() != "00:15" {
		t.Errorf("schedule = %q, want 00:15", active.Schedule())
	}
	if active.Encode(now)[5] != 0 {
		t.Error("active flag byte should be 0")
	}
}

func TestTimerEncodeLayout(t *testing.T) {
	now := time.Date(2024, 3, 1, 14, 5, 42, 0, time.UTC)
	tm := Timer{
		ID:             7,
		Type:           TimerDoze,
		StartingHour:   22,
		StartingMinute: 30,
		Runtime:        60,
		Color:          Color{White: 1, Red: 2, Green: 3, Blue: 4},
	}
	got := tm.Encode(now)
	want := []byte{3, 1, 42, 5, 14, 0, 30, 22, 1, 2, 3, 4, 60}
	if !bytes.Equal(got, want) {
		t.Errorf("encode = %v, want %v", got, want)
	}
}

func timersFixture() ([]byte, []byte) {
	timerBytes := []byte{
		0, 8, 30,
		2, 0xFF, 0,
		1, 22, 0,
		2, 0xFF, 0,
		14, 5,
	}
	effectBytes := []byte{
		255, 0, 0, 0, 30,
		0, 0, 0, 0, 0,
		0, 255, 100, 0, 45,
		0, 0, 0, 0, 0,
	}
	return timerBytes, effectBytes
}

func TestDecodeTimersScenario(t *testing.T) {
	ts, err := DecodeTimers(timersFixture())
	if err != nil {
		t.Fatal(err)
	}
	if ts.CurrentHour != 14 || ts.CurrentMinute != 5 {
		t.Errorf("clock = %02d:%02d, want 14:05", ts.CurrentHour, ts.CurrentMinute)
	}

	checks := []struct {
		active   bool
		typ      TimerType
		schedule string
	}{
		{true, TimerWakeup, "08:30"},
		{false, TimerOff, "N/A"},
		{true, TimerDoze, "22:00"},
		{false, TimerOff, "N/A"},
	}
	for i, want := range checks {
		got := ts.Slots[i]
		if got.ID != i {
			t.Errorf("slot %d id = %d", i, got.ID)
		}
		if got.Active() != want.active || got.Type != want.typ || got.Schedule() != want.schedule {
			t.Errorf("slot %d = %v, want active=%t type=%v schedule=%s", i, got, want.active, want.typ, want.schedule)
		}
	}

	if ts.Slots[0].Color != (Color{White: 255}) || ts.Slots[0].Runtime != 30 {
		t.Errorf("slot 0 color/runtime = %v/%d", ts.Slots[0].Color, ts.Slots[0].Runtime)
	}
	if ts.Slots[2].Runtime != 45 || ts.Slots[2].Color.Red != 255 {
		t.Errorf("slot 2 color/runtime = %v/%d", ts.Slots[2].Color, ts.Slots[2].Runtime)
	}
}

func TestDecodeTimersShort(t *testing.T) {
	timerBytes, effectBytes := timersFixture()
	if _, err := DecodeTimers(timerBytes[:13], effectBytes); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("short timer bytes: err = %v", err)
	}
	if _, err := DecodeTimers(timerBytes, effectBytes[:19]); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("short effect bytes: err = %v", err)
	}
}

func TestTimersModularIndexing(t *testing.T) {
	ts, err := DecodeTimers(timersFixture())
	if err != nil {
		t.Fatal(err)
	}
	if ts.Timer(6) != ts.Slots[2] {
		t.Error("Timer(6) should alias slot 2")
	}
	if ts.Timer(-1) != ts.Slots[3] {
		t.Error("Timer(-1) should alias slot 3")
	}

	updated := ts.WithTimer(Timer{ID: 7, Type: TimerWakeup, StartingHour: 6, StartingMinute: 45})
	if updated.Slots[3].StartingHour != 6 {
		t.Errorf("slot 3 = %v, want the new timer", updated.Slots[3])
	}
	for i := 0; i < 3; i++ {
		if updated.Slots[i] != ts.Slots[i] {
			t.Errorf("slot %d changed: %v", i, updated.Slots[i])
		}
	}
	if updated.CurrentHour != ts.CurrentHour || updated.CurrentMinute != ts.CurrentMinute {
		t.Error("clock fields changed")
	}
	if ts.Slots[3].Active() {
		t.Error("WithTimer mutated the receiver")
	}
}

func TestTimerRoundTripPersistedFields(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	in := Timer{ID: 2, Type: TimerDoze, StartingHour: 21, StartingMinute: 15, Runtime: 90, Color: Color{Red: 200}}
	b := in.Encode(now)

	// Scatter the write back into the two read layouts.
	timerBytes := make([]byte, timersLen)
	effectBytes := make([]byte, runningTimersLen)
	slot := int(b[0])
	timerBytes[slot*3] = b[1]
	timerBytes[slot*3+1] = b[7]
	timerBytes[slot*3+2] = b[6]
	copy(effectBytes[slot*5:], b[8:13])

	ts, err := DecodeTimers(timerBytes, effectBytes)
	if err != nil {
		t.Fatal(err)
	}
	if got := ts.Timer(in.ID); got != in {
		t.Errorf("round trip = %v, want %v", got, in)
	}
}

func TestRandommodeSentinel(t *testing.T) {
	r := Randommode{StartingHour: NotSetHour, StartingMinute: 0, EndingHour: 22, EndingMinute: 30}
	if r.Start() != "N/A" || r.End() != "N/A" {
		t.Errorf("start/end = %s/%s, want N/A/N/A", r.Start(), r.End())
	}

	r.StartingHour = 16
	r.StartingMinute = 30
	if r.Start() != "16:30" || r.End() != "22:30" {
		t.Errorf("start/end = %s/%s, want 16:30/22:30", r.Start(), r.End())
	}
}

func TestRandommodeRoundTrip(t *testing.T) {
	now := time.Date(2024, 3, 1, 14, 5, 42, 0, time.UTC)
	in := Randommode{
		StartingHour:   16,
		StartingMinute: 30,
		EndingHour:     22,
		EndingMinute:   30,
		MinInterval:    40,
		MaxInterval:    75,
		Color:          Color{White: 255},
	}
	b := in.Encode(now)
	want := []byte{42, 5, 14, 16, 30, 22, 30, 40, 75, 255, 0, 0, 0}
	if !bytes.Equal(b, want) {
		t.Errorf("encode = %v, want %v", b, want)
	}

	got, err := DecodeRandommode(b)
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("decode(encode) = %v, want %v", got, in)
	}

	if _, err := DecodeRandommode(b[:12]); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("short buffer: err = %v", err)
	}
}

func TestTimerJSON(t *testing.T) {
	b, err := json.Marshal(Timer{ID: 1, Type: TimerOff, StartingHour: InactiveHour})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatal(err)
	}
	if m["active"] != false || m["schedule"] != "N/A" || m["type"] != "off" {
		t.Errorf("json = %s", b)
	}
}
