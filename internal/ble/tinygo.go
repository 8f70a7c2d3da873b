package ble

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

const readBufferSize = 512

// TinyGoTransport uses the platform stack exposed by tinygo.org/x/bluetooth.
type TinyGoTransport struct {
	adapter        *bluetooth.Adapter
	scanTimeout    time.Duration
	connectTimeout time.Duration
}

// NewTinyGoTransport enables the default adapter.
func NewTinyGoTransport(scanTimeout, connectTimeout time.Duration) (*TinyGoTransport, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable adapter: %w", err)
	}
	return &TinyGoTransport{
		adapter:        adapter,
		scanTimeout:    scanTimeout,
		connectTimeout: connectTimeout,
	}, nil
}

// Close stops any scan still running.
func (t *TinyGoTransport) Close() error {
	return t.adapter.StopScan()
}

// Find waits for an advertisement from address, up to the scan timeout.
func (t *TinyGoTransport) Find(ctx context.Context, address string) (Device, error) {
	// A scan left over from a timed-out attempt blocks the next one.
	t.adapter.StopScan()

	ch := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if strings.EqualFold(result.Address.String(), address) {
				adapter.StopScan()
				select {
				case ch <- result:
				default:
				}
			}
		})
		if err != nil {
			log.Printf("[TinyGo] Scan error: %v", err)
		}
	}()

	scanCtx, cancel := context.WithTimeout(ctx, t.scanTimeout)
	defer cancel()
	select {
	case result := <-ch:
		log.Printf("[TinyGo] Found device %s (RSSI: %d)", result.Address.String(), result.RSSI)
		return &tinygoDevice{t: t, result: result}, nil
	case <-scanCtx.Done():
		t.adapter.StopScan()
		return nil, fmt.Errorf("%w: %s not seen within %s", ErrDeviceNotFound, address, t.scanTimeout)
	}
}

type tinygoDevice struct {
	t      *TinyGoTransport
	result bluetooth.ScanResult

	mu        sync.Mutex
	device    bluetooth.Device
	connected bool
	services  []bluetooth.DeviceService
}

func (d *tinygoDevice) Address() string {
	return strings.ToUpper(d.result.Address.String())
}

// Connect wraps adapter.Connect in the connect timeout; BlueZ can hang here.
func (d *tinygoDevice) Connect() bool {
	type outcome struct {
		device bluetooth.Device
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		dev, err := d.t.adapter.Connect(d.result.Address, bluetooth.ConnectionParams{})
		done <- outcome{dev, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			log.Printf("[TinyGo] Failed to connect: %v", o.err)
			return false
		}
		d.mu.Lock()
		d.device = o.device
		d.connected = true
		d.services = nil
		d.mu.Unlock()
		return true
	case <-time.After(d.t.connectTimeout):
		log.Printf("[TinyGo] Connection attempt to %s timed out", d.Address())
		return false
	}
}

func (d *tinygoDevice) Disconnect() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.device.Disconnect(); err != nil {
		log.Printf("[TinyGo] Disconnect warning: %v", err)
		return false
	}
	d.connected = false
	d.services = nil
	return true
}

func (d *tinygoDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// markLost records that GATT I/O failed. The stack does not report a link
// dropped over the air, so a failed read or write is taken as the signal.
func (d *tinygoDevice) markLost(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return
	}
	log.Printf("[TinyGo] GATT operation failed, treating %s as disconnected: %v", strings.ToUpper(d.result.Address.String()), err)
	d.connected = false
	d.services = nil
}

// IsServicesResolved runs service discovery once and remembers the result.
func (d *tinygoDevice) IsServicesResolved() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return false
	}
	if len(d.services) > 0 {
		return true
	}
	services, err := d.device.DiscoverServices(nil)
	if err != nil {
		log.Printf("[TinyGo] Service discovery failed: %v", err)
		return false
	}
	d.services = services
	return len(services) > 0
}

func (d *tinygoDevice) Attributes() (map[string]Attribute, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	attrs := make(map[string]Attribute)
	for _, svc := range d.services {
		chars, err := svc.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("discover characteristics of %s: %w", svc.UUID().String(), err)
		}
		for _, c := range chars {
			uuid := c.UUID().String()
			attrs[uuid] = &tinygoAttribute{uuid: uuid, char: c, dev: d}
		}
	}
	return attrs, nil
}

// gattCharacteristic is the part of bluetooth.DeviceCharacteristic the
// attributes use.
type gattCharacteristic interface {
	Read(data []byte) (int, error)
	Write(p []byte) (int, error)
}

type tinygoAttribute struct {
	uuid string
	char gattCharacteristic
	dev  *tinygoDevice
}

func (a *tinygoAttribute) UUID() string { return a.uuid }

func (a *tinygoAttribute) ReadValue() ([]byte, error) {
	buf := make([]byte, readBufferSize)
	n, err := a.char.Read(buf)
	if err != nil {
		a.dev.markLost(err)
		return nil, fmt.Errorf("read %s: %w", a.uuid, err)
	}
	return buf[:n], nil
}

func (a *tinygoAttribute) WriteValue(value []byte) error {
	if _, err := a.char.Write(value); err != nil {
		a.dev.markLost(err)
		return fmt.Errorf("write %s: %w", a.uuid, err)
	}
	return nil
}
