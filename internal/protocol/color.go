// Package protocol packs and unpacks the Playbulb characteristic records.
//
// Every record is a fixed-layout byte sequence. Decoders index fixed
// offsets and reject buffers that are too short with ErrMalformedRecord;
// encoders that carry wall-clock bytes take the time explicitly.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedRecord is returned when a buffer is shorter than its record layout.
var ErrMalformedRecord = errors.New("malformed record")

const colorLen = 4

// Color holds the four channel intensities of the bulb.
type Color struct {
	White uint8 `json:"white" yaml:"white"`
	Red   uint8 `json:"red" yaml:"red"`
	Green uint8 `json:"green" yaml:"green"`
	Blue  uint8 `json:"blue" yaml:"blue"`
}

// DecodeColor reads a Color from the first four bytes (white, red, green, blue).
func DecodeColor(b []byte) (Color, error) {
	if err := need("color", b, colorLen); err != nil {
		return Color{}, err
	}
	return Color{White: b[0], Red: b[1], Green: b[2], Blue: b[3]}, nil
}

// Encode returns the 4-byte wire form.
func (c Color) Encode() []byte {
	return []byte{c.White, c.Red, c.Green, c.Blue}
}

// Hex renders the color as #WWRRGGBB.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.White, c.Red, c.Green, c.Blue)
}

func (c Color) String() string {
	return fmt.Sprintf("Color(white=%d, red=%d, green=%d, blue=%d)", c.White, c.Red, c.Green, c.Blue)
}

// ParseColor accepts "#WWRRGGBB", "WWRRGGBB" or "w,r,g,b".
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if len(parts) != colorLen {
			return Color{}, fmt.Errorf("color %q: want 4 channels, got %d", s, len(parts))
		}
		var ch [colorLen]uint8
		for i, p := range parts {
			v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				return Color{}, fmt.Errorf("color %q: channel %d: %w", s, i, err)
			}
			ch[i] = uint8(v)
		}
		return Color{White: ch[0], Red: ch[1], Green: ch[2], Blue: ch[3]}, nil
	}

	hex := strings.TrimPrefix(s, "#")
	if len(hex) != 2*colorLen {
		return Color{}, fmt.Errorf("color %q: want #WWRRGGBB", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("color %q: %w", s, err)
	}
	return Color{White: uint8(v >> 24), Red: uint8(v >> 16), Green: uint8(v >> 8), Blue: uint8(v)}, nil
}

func need(record string, b []byte, n int) error {
	if len(b) < n {
		return fmt.Errorf("%w: %s needs %d bytes, got %d", ErrMalformedRecord, record, n, len(b))
	}
	return nil
}
