package ble

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService  = "org.bluez"
	deviceIface   = "org.bluez.Device1"
	charIface     = "org.bluez.GattCharacteristic1"
	objectManager = "org.freedesktop.DBus.ObjectManager.GetManagedObjects"
)

type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// BlueZTransport talks to devices BlueZ already knows about over the system D-Bus.
type BlueZTransport struct {
	conn    *dbus.Conn
	adapter string
}

// NewBlueZTransport opens a private system bus connection. adapter is the
// HCI name, e.g. "hci0".
func NewBlueZTransport(adapter string) (*BlueZTransport, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system D-Bus: %w", err)
	}
	if adapter == "" {
		adapter = "hci0"
	}
	return &BlueZTransport{conn: conn, adapter: adapter}, nil
}

// Close releases the bus connection.
func (t *BlueZTransport) Close() error {
	return t.conn.Close()
}

// Find resolves address to a BlueZ device object.
func (t *BlueZTransport) Find(ctx context.Context, address string) (Device, error) {
	path := devicePath(t.adapter, address)
	objects, err := t.managedObjects()
	if err != nil {
		return nil, err
	}
	if _, ok := objects[path][deviceIface]; !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrDeviceNotFound, address, t.adapter)
	}
	log.Printf("[BlueZ] Found device %s at %s", address, path)
	return &bluezDevice{t: t, address: strings.ToUpper(address), path: path}, nil
}

func (t *BlueZTransport) managedObjects() (managedObjects, error) {
	objects := make(managedObjects)
	obj := t.conn.Object(bluezService, "/")
	if err := obj.Call(objectManager, 0).Store(&objects); err != nil {
		return nil, fmt.Errorf("get managed objects: %w", err)
	}
	return objects, nil
}

// devicePath builds /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapter, address string) dbus.ObjectPath {
	mac := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(address), ":", "_"))
	return dbus.ObjectPath(fmt.Sprintf("/org/bluez/%s/dev_%s", adapter, mac))
}

type bluezDevice struct {
	t       *BlueZTransport
	address string
	path    dbus.ObjectPath
}

func (d *bluezDevice) Address() string { return d.address }

func (d *bluezDevice) object() dbus.BusObject {
	return d.t.conn.Object(bluezService, d.path)
}

func (d *bluezDevice) Connect() bool {
	if err := d.object().Call(deviceIface+".Connect", 0).Err; err != nil {
		log.Printf("[BlueZ] Connect %s: %v", d.address, err)
		return false
	}
	return d.IsConnected()
}

func (d *bluezDevice) Disconnect() bool {
	if err := d.object().Call(deviceIface+".Disconnect", 0).Err; err != nil {
		log.Printf("[BlueZ] Disconnect %s: %v", d.address, err)
		return false
	}
	return true
}

func (d *bluezDevice) IsConnected() bool {
	return d.boolProperty("Connected")
}

func (d *bluezDevice) IsServicesResolved() bool {
	return d.boolProperty("ServicesResolved")
}

func (d *bluezDevice) boolProperty(name string) bool {
	v, err := d.object().GetProperty(deviceIface + "." + name)
	if err != nil {
		log.Printf("[BlueZ] Read %s of %s: %v", name, d.address, err)
		return false
	}
	b, _ := v.Value().(bool)
	return b
}

// Attributes collects every GATT characteristic below the device path.
func (d *bluezDevice) Attributes() (map[string]Attribute, error) {
	objects, err := d.t.managedObjects()
	if err != nil {
		return nil, err
	}
	prefix := string(d.path) + "/"
	attrs := make(map[string]Attribute)
	for path, ifaces := range objects {
		props, ok := ifaces[charIface]
		if !ok || !strings.HasPrefix(string(path), prefix) {
			continue
		}
		uuid, _ := props["UUID"].Value().(string)
		if uuid == "" {
			continue
		}
		attrs[uuid] = &bluezAttribute{t: d.t, uuid: uuid, path: path}
	}
	return attrs, nil
}

type bluezAttribute struct {
	t    *BlueZTransport
	uuid string
	path dbus.ObjectPath
}

func (a *bluezAttribute) UUID() string { return a.uuid }

func (a *bluezAttribute) ReadValue() ([]byte, error) {
	var value []byte
	obj := a.t.conn.Object(bluezService, a.path)
	options := map[string]dbus.Variant{}
	if err := obj.Call(charIface+".ReadValue", 0, options).Store(&value); err != nil {
		return nil, fmt.Errorf("read %s: %w", a.uuid, err)
	}
	return value, nil
}

func (a *bluezAttribute) WriteValue(value []byte) error {
	obj := a.t.conn.Object(bluezService, a.path)
	options := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	if err := obj.Call(charIface+".WriteValue", 0, value, options).Err; err != nil {
		return fmt.Errorf("write %s: %w", a.uuid, err)
	}
	return nil
}
