package ble

// Standard GATT characteristics.
const (
	CharServiceChanged   = "00002a05-0000-1000-8000-00805f9b34fb"
	CharBatteryLevel     = "00002a19-0000-1000-8000-00805f9b34fb"
	CharSerialNumber     = "00002a25-0000-1000-8000-00805f9b34fb"
	CharFirmwareRevision = "00002a26-0000-1000-8000-00805f9b34fb"
	CharHardwareRevision = "00002a27-0000-1000-8000-00805f9b34fb"
	CharSoftwareRevision = "00002a28-0000-1000-8000-00805f9b34fb"
	CharManufacturerName = "00002a29-0000-1000-8000-00805f9b34fb"
	CharPnPID            = "00002a50-0000-1000-8000-00805f9b34fb"
)

// Playbulb vendor characteristics.
const (
	CharPin           = "0000fff7-0000-1000-8000-00805f9b34fb"
	CharRunningTimers = "0000fff8-0000-1000-8000-00805f9b34fb"
	CharRandomMode    = "0000fff9-0000-1000-8000-00805f9b34fb"
	CharReserved      = "0000fffa-0000-1000-8000-00805f9b34fb"
	CharEffect        = "0000fffb-0000-1000-8000-00805f9b34fb"
	CharColor         = "0000fffc-0000-1000-8000-00805f9b34fb"
	CharFactoryReset  = "0000fffd-0000-1000-8000-00805f9b34fb"
	CharTimerSettings = "0000fffe-0000-1000-8000-00805f9b34fb"
	CharGivenName     = "0000ffff-0000-1000-8000-00805f9b34fb"
)
