// Package device keeps the in-memory view of one connected bulb.
//
// Every field is read lazily through the attribute registry, decoded with
// the protocol package and cached until a forced read. Setters only touch
// the cache after the device acknowledged the write.
package device

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"playbulb-controller/internal/ble"
	"playbulb-controller/internal/protocol"
)

// ErrWriteRejected is returned when the device did not acknowledge a write.
// The cached value is left as it was.
var ErrWriteRejected = errors.New("write rejected")

// PinNotAvailable is the pin reported by models without a pin characteristic.
const PinNotAvailable = "N/A"

// Attributes resolves characteristic UUIDs. *ble.Registry implements it.
type Attributes interface {
	Lookup(id string) (ble.Attribute, bool)
}

// Battery is the battery level. Available is false on mains-powered models.
type Battery struct {
	Level     uint8 `json:"level"`
	Available bool  `json:"available"`
}

type slot[T any] struct {
	value T
	ok    bool
}

func (s *slot[T]) set(v T) {
	s.value = v
	s.ok = true
}

func (s *slot[T]) ptr() *T {
	if !s.ok {
		return nil
	}
	v := s.value
	return &v
}

// load returns the cached value unless it is unset or force is true, in
// which case it reads, caches and returns a fresh one.
func load[T any](s *slot[T], force bool, read func() (T, error)) (T, error) {
	if s.ok && !force {
		return s.value, nil
	}
	v, err := read()
	if err != nil {
		var zero T
		return zero, err
	}
	s.set(v)
	return v, nil
}

// Cache is the read/write facade over one session's registry. It is not
// safe for concurrent use; callers serialize access.
type Cache struct {
	address string
	attrs   Attributes
	clock   func() time.Time

	name         slot[string]
	pin          slot[string]
	battery      slot[Battery]
	manufacturer slot[string]
	serial       slot[string]
	firmware     slot[string]
	hardware     slot[string]
	software     slot[string]
	pnpID        slot[*big.Int]
	color        slot[protocol.Color]
	effect       slot[protocol.Effect]
	timers       slot[protocol.Timers]
	randommode   slot[protocol.Randommode]
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now for the clock bytes of timer and random mode writes.
func WithClock(clock func() time.Time) Option {
	return func(c *Cache) { c.clock = clock }
}

// New returns an empty cache for the device at address.
func New(address string, attrs Attributes, opts ...Option) *Cache {
	c := &Cache{address: address, attrs: attrs, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the device address.
func (c *Cache) Address() string { return c.address }

func (c *Cache) read(id string) ([]byte, error) {
	a, ok := c.attrs.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ble.ErrAttributeAbsent, id)
	}
	return a.ReadValue()
}

func (c *Cache) write(id string, value []byte) error {
	a, ok := c.attrs.Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ble.ErrAttributeAbsent, id)
	}
	if err := a.WriteValue(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteRejected, id, err)
	}
	return nil
}

func (c *Cache) readString(id string) (string, error) {
	b, err := c.read(id)
	if err != nil {
		return "", err
	}
	return decodeString(b), nil
}

// Strings are NUL padded on some firmware revisions.
func decodeString(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

// Name returns the user-given name of the bulb.
func (c *Cache) Name(force bool) (string, error) {
	return load(&c.name, force, func() (string, error) {
		return c.readString(ble.CharGivenName)
	})
}

// SetName writes the user-given name.
func (c *Cache) SetName(name string) error {
	if err := c.write(ble.CharGivenName, []byte(name)); err != nil {
		return err
	}
	c.name.set(name)
	return nil
}

// Pin returns the pairing pin, or PinNotAvailable when the model has none.
func (c *Cache) Pin(force bool) (string, error) {
	return load(&c.pin, force, func() (string, error) {
		if _, ok := c.attrs.Lookup(ble.CharPin); !ok {
			return PinNotAvailable, nil
		}
		return c.readString(ble.CharPin)
	})
}

// SetPin writes the pairing pin.
func (c *Cache) SetPin(pin string) error {
	if err := c.write(ble.CharPin, []byte(pin)); err != nil {
		return err
	}
	c.pin.set(pin)
	return nil
}

// BatteryLevel returns the battery level. Models without a battery report
// Available == false instead of an error.
func (c *Cache) BatteryLevel(force bool) (Battery, error) {
	return load(&c.battery, force, func() (Battery, error) {
		if _, ok := c.attrs.Lookup(ble.CharBatteryLevel); !ok {
			return Battery{}, nil
		}
		b, err := c.read(ble.CharBatteryLevel)
		if err != nil {
			return Battery{}, err
		}
		if len(b) == 0 {
			return Battery{}, fmt.Errorf("%w: empty battery level", protocol.ErrMalformedRecord)
		}
		return Battery{Level: b[0], Available: true}, nil
	})
}

func (c *Cache) Manufacturer(force bool) (string, error) {
	return load(&c.manufacturer, force, func() (string, error) {
		return c.readString(ble.CharManufacturerName)
	})
}

func (c *Cache) SerialNumber(force bool) (string, error) {
	return load(&c.serial, force, func() (string, error) {
		return c.readString(ble.CharSerialNumber)
	})
}

func (c *Cache) FirmwareRevision(force bool) (string, error) {
	return load(&c.firmware, force, func() (string, error) {
		return c.readString(ble.CharFirmwareRevision)
	})
}

func (c *Cache) HardwareRevision(force bool) (string, error) {
	return load(&c.hardware, force, func() (string, error) {
		return c.readString(ble.CharHardwareRevision)
	})
}

func (c *Cache) SoftwareRevision(force bool) (string, error) {
	return load(&c.software, force, func() (string, error) {
		return c.readString(ble.CharSoftwareRevision)
	})
}

// PnPID returns the vendor/product identifier as an unsigned big-endian integer.
func (c *Cache) PnPID(force bool) (*big.Int, error) {
	v, err := load(&c.pnpID, force, func() (*big.Int, error) {
		b, err := c.read(ble.CharPnPID)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetBytes(b), nil
	})
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(v), nil
}

// Color returns the static color.
func (c *Cache) Color(force bool) (protocol.Color, error) {
	return load(&c.color, force, func() (protocol.Color, error) {
		b, err := c.read(ble.CharColor)
		if err != nil {
			return protocol.Color{}, err
		}
		return protocol.DecodeColor(b)
	})
}

// SetColor writes the static color.
func (c *Cache) SetColor(color protocol.Color) error {
	if err := c.write(ble.CharColor, color.Encode()); err != nil {
		return err
	}
	c.color.set(color)
	return nil
}

// Effect returns the running effect.
func (c *Cache) Effect(force bool) (protocol.Effect, error) {
	e, err := load(&c.effect, force, func() (protocol.Effect, error) {
		b, err := c.read(ble.CharEffect)
		if err != nil {
			return protocol.Effect{}, err
		}
		return protocol.DecodeEffect(b)
	})
	return cloneEffect(e), err
}

// SetEffect writes the running effect.
func (c *Cache) SetEffect(e protocol.Effect) error {
	if err := c.write(ble.CharEffect, e.Encode()); err != nil {
		return err
	}
	c.effect.set(cloneEffect(e))
	return nil
}

func cloneEffect(e protocol.Effect) protocol.Effect {
	if e.Color != nil {
		color := *e.Color
		e.Color = &color
	}
	return e
}

// Timers returns all four timer slots and the device clock.
func (c *Cache) Timers(force bool) (protocol.Timers, error) {
	return load(&c.timers, force, func() (protocol.Timers, error) {
		timerBytes, err := c.read(ble.CharTimerSettings)
		if err != nil {
			return protocol.Timers{}, err
		}
		effectBytes, err := c.read(ble.CharRunningTimers)
		if err != nil {
			return protocol.Timers{}, err
		}
		return protocol.DecodeTimers(timerBytes, effectBytes)
	})
}

// SetTimer writes one timer slot. On success only slot t.ID mod 4 of the
// cached timers changes. If the timers were never read they stay unset.
func (c *Cache) SetTimer(t protocol.Timer) error {
	if err := c.write(ble.CharTimerSettings, t.Encode(c.clock())); err != nil {
		return err
	}
	if c.timers.ok {
		c.timers.set(c.timers.value.WithTimer(t))
	}
	return nil
}

// Randommode returns the random mode schedule.
func (c *Cache) Randommode(force bool) (protocol.Randommode, error) {
	return load(&c.randommode, force, func() (protocol.Randommode, error) {
		b, err := c.read(ble.CharRandomMode)
		if err != nil {
			return protocol.Randommode{}, err
		}
		return protocol.DecodeRandommode(b)
	})
}

// SetRandommode writes the random mode schedule.
func (c *Cache) SetRandommode(r protocol.Randommode) error {
	if err := c.write(ble.CharRandomMode, r.Encode(c.clock())); err != nil {
		return err
	}
	c.randommode.set(r)
	return nil
}

// Invalidate forgets every cached value so the next getter reads again.
func (c *Cache) Invalidate() {
	*c = Cache{address: c.address, attrs: c.attrs, clock: c.clock}
}
