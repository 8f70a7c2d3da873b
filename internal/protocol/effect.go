package protocol

import (
	"fmt"
	"strings"
)

// EffectType is the light effect code stored in byte 4 of the effect record.
type EffectType uint8

const (
	EffectBlink   EffectType = 0
	EffectPulse   EffectType = 1
	EffectDisco   EffectType = 2
	EffectRainbow EffectType = 3
	EffectCandle  EffectType = 4
	EffectOff     EffectType = 0xFF
)

var effectNames = map[EffectType]string{
	EffectBlink:   "blink",
	EffectPulse:   "pulse",
	EffectDisco:   "disco",
	EffectRainbow: "rainbow",
	EffectCandle:  "candle",
	EffectOff:     "off",
}

// EffectTypeFromCode maps a wire code to an EffectType. Unknown codes are EffectOff.
func EffectTypeFromCode(code byte) EffectType {
	t := EffectType(code)
	if _, ok := effectNames[t]; ok {
		return t
	}
	return EffectOff
}

// ParseEffectType resolves a case-insensitive effect name.
func ParseEffectType(name string) (EffectType, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for t, n := range effectNames {
		if n == name {
			return t, true
		}
	}
	return EffectOff, false
}

// Code returns the wire code.
func (t EffectType) Code() byte { return byte(t) }

func (t EffectType) String() string {
	if n, ok := effectNames[t]; ok {
		return strings.ToUpper(n)
	}
	return fmt.Sprintf("EffectType(%d)", uint8(t))
}

func (t EffectType) MarshalText() ([]byte, error) {
	return []byte(effectNames[EffectTypeFromCode(byte(t))]), nil
}

func (t *EffectType) UnmarshalText(text []byte) error {
	v, ok := ParseEffectType(string(text))
	if !ok {
		return fmt.Errorf("unknown effect %q", text)
	}
	*t = v
	return nil
}

const (
	effectDecodeLen = 7
	effectEncodeLen = 8
)

// Effect is the running light effect. A nil Color is written as all zeros.
type Effect struct {
	Type  EffectType `json:"type"`
	Color *Color     `json:"color,omitempty"`
	Delay uint8      `json:"delay"`
}

// DecodeEffect reads bytes 0-3 as the color, byte 4 as the effect code and
// byte 6 as the delay. Byte 5 is reserved.
func DecodeEffect(b []byte) (Effect, error) {
	if err := need("effect", b, effectDecodeLen); err != nil {
		return Effect{}, err
	}
	c, _ := DecodeColor(b[:colorLen])
	return Effect{
		Type:  EffectTypeFromCode(b[4]),
		Color: &c,
		Delay: b[6],
	}, nil
}

// Encode returns color, effect code, a reserved zero, delay and a trailing zero.
func (e Effect) Encode() []byte {
	var c Color
	if e.Color != nil {
		c = *e.Color
	}
	out := make([]byte, 0, effectEncodeLen)
	out = append(out, c.Encode()...)
	return append(out, e.Type.Code(), 0, e.Delay, 0)
}

func (e Effect) String() string {
	color := "null"
	if e.Color != nil {
		color = e.Color.String()
	}
	return fmt.Sprintf("Effect(type=%s, color=%s, delay=%d)", e.Type, color, e.Delay)
}
