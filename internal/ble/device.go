package ble

import (
	"context"
	"errors"
)

var (
	// ErrDeviceNotFound is returned by a Transport when no device has the requested address.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrConnectionFailed covers connect/disconnect failures and service resolution timeouts.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrAttributeAbsent is returned when a required characteristic is not exposed by the device.
	ErrAttributeAbsent = errors.New("attribute absent")
)

// Device is the radio-level handle of one bulb.
type Device interface {
	Address() string
	Connect() bool
	Disconnect() bool
	IsConnected() bool
	IsServicesResolved() bool
	// Attributes enumerates every characteristic, keyed by UUID.
	Attributes() (map[string]Attribute, error)
}

// Attribute is one readable/writable characteristic.
type Attribute interface {
	UUID() string
	ReadValue() ([]byte, error)
	// WriteValue returns nil only when the write was acknowledged.
	WriteValue(value []byte) error
}

// Transport locates devices by address.
type Transport interface {
	Find(ctx context.Context, address string) (Device, error)
	Close() error
}
