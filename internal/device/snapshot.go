package device

import (
	"errors"
	"fmt"
	"math/big"

	"playbulb-controller/internal/protocol"
)

// Snapshot is a copy of every cached field. Nil fields have not been read.
type Snapshot struct {
	Address          string               `json:"address"`
	Name             *string              `json:"name,omitempty"`
	Pin              *string              `json:"pin,omitempty"`
	Battery          *Battery             `json:"battery,omitempty"`
	Manufacturer     *string              `json:"manufacturer,omitempty"`
	SerialNumber     *string              `json:"serial_number,omitempty"`
	FirmwareRevision *string              `json:"firmware_revision,omitempty"`
	HardwareRevision *string              `json:"hardware_revision,omitempty"`
	SoftwareRevision *string              `json:"software_revision,omitempty"`
	PnPID            *big.Int             `json:"pnp_id,omitempty"`
	Color            *protocol.Color      `json:"color,omitempty"`
	Effect           *protocol.Effect     `json:"effect,omitempty"`
	Timers           *protocol.Timers     `json:"timers,omitempty"`
	Randommode       *protocol.Randommode `json:"randommode,omitempty"`
}

// Snapshot returns the cached values without any I/O.
func (c *Cache) Snapshot() Snapshot {
	s := Snapshot{
		Address:          c.address,
		Name:             c.name.ptr(),
		Pin:              c.pin.ptr(),
		Battery:          c.battery.ptr(),
		Manufacturer:     c.manufacturer.ptr(),
		SerialNumber:     c.serial.ptr(),
		FirmwareRevision: c.firmware.ptr(),
		HardwareRevision: c.hardware.ptr(),
		SoftwareRevision: c.software.ptr(),
		Color:            c.color.ptr(),
		Timers:           c.timers.ptr(),
		Randommode:       c.randommode.ptr(),
	}
	if c.pnpID.ok {
		s.PnPID = new(big.Int).Set(c.pnpID.value)
	}
	if c.effect.ok {
		e := cloneEffect(c.effect.value)
		s.Effect = &e
	}
	return s
}

// ReadAll reads every field from the device. Fields are independent: a
// failing field does not stop the others, and all failures are joined.
func (c *Cache) ReadAll() (Snapshot, error) {
	reads := []struct {
		field string
		read  func() error
	}{
		{"firmware", func() error { _, err := c.FirmwareRevision(true); return err }},
		{"hardware", func() error { _, err := c.HardwareRevision(true); return err }},
		{"manufacturer", func() error { _, err := c.Manufacturer(true); return err }},
		{"pnp id", func() error { _, err := c.PnPID(true); return err }},
		{"serial number", func() error { _, err := c.SerialNumber(true); return err }},
		{"software", func() error { _, err := c.SoftwareRevision(true); return err }},
		{"color", func() error { _, err := c.Color(true); return err }},
		{"effect", func() error { _, err := c.Effect(true); return err }},
		{"timers", func() error { _, err := c.Timers(true); return err }},
		{"randommode", func() error { _, err := c.Randommode(true); return err }},
		{"name", func() error { _, err := c.Name(true); return err }},
		{"pin", func() error { _, err := c.Pin(true); return err }},
		{"battery", func() error { _, err := c.BatteryLevel(true); return err }},
	}

	var errs []error
	for _, r := range reads {
		if err := r.read(); err != nil {
			errs = append(errs, fmt.Errorf("read %s: %w", r.field, err))
		}
	}
	return c.Snapshot(), errors.Join(errs...)
}

func (s Snapshot) String() string {
	battery := "null"
	if s.Battery != nil && s.Battery.Available {
		battery = fmt.Sprint(s.Battery.Level)
	}
	return fmt.Sprintf("Playbulb(mac=%s, name=%s, pin=%s, battery=%s, manufacturer=%s, serialnumber=%s, firmware=%s, hardware=%s, software=%s, pnp=%s, color=%s, effect=%s, timers=%s, randommode=%s)",
		s.Address, str(s.Name), str(s.Pin), battery, str(s.Manufacturer), str(s.SerialNumber),
		str(s.FirmwareRevision), str(s.HardwareRevision), str(s.SoftwareRevision),
		orNull(s.PnPID), orNull(s.Color), orNull(s.Effect), orNull(s.Timers), orNull(s.Randommode))
}

func str(p *string) string {
	if p == nil {
		return "null"
	}
	return *p
}

func orNull[T fmt.Stringer](v T) string {
	var zero T
	if any(v) == any(zero) {
		return "null"
	}
	return v.String()
}
