// Package bledb names well-known GATT services, characteristics and descriptors.
package bledb

import (
	"sync"

	"github.com/srg/rxble/pkg/central"
)

// Bluetooth SIG assigned numbers, plus a few widely deployed vendor UUIDs.
var (
	services = map[central.UUID]string{
		"1800": "Generic Access",
		"1801": "Generic Attribute",
		"180a": "Device Information",
		"180d": "Heart Rate",
		"180f": "Battery Service",
		"1809": "Health Thermometer",
		"1810": "Blood Pressure",
		"1812": "Human Interface Device",
		"1816": "Cycling Speed and Cadence",
		"1818": "Cycling Power",
		"1819": "Location and Navigation",
		"181a": "Environmental Sensing",
		"181c": "User Data",
		"181d": "Weight Scale",
		"fe59": "Nordic DFU",

		"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART Service",
	}

	characteristics = map[central.UUID]string{
		"2a00": "Device Name",
		"2a01": "Appearance",
		"2a04": "Peripheral Preferred Connection Parameters",
		"2a05": "Service Changed",
		"2a19": "Battery Level",
		"2a1c": "Temperature Measurement",
		"2a23": "System ID",
		"2a24": "Model Number String",
		"2a25": "Serial Number String",
		"2a26": "Firmware Revision String",
		"2a27": "Hardware Revision String",
		"2a28": "Software Revision String",
		"2a29": "Manufacturer Name String",
		"2a35": "Blood Pressure Measurement",
		"2a37": "Heart Rate Measurement",
		"2a38": "Body Sensor Location",
		"2a39": "Heart Rate Control Point",
		"2a6e": "Temperature",
		"2a6f": "Humidity",
		"2a9d": "Weight Measurement",

		"6e400002b5a3f393e0a9e50e24dcca9e": "UART RX",
		"6e400003b5a3f393e0a9e50e24dcca9e": "UART TX",
	}

	descriptors = map[central.UUID]string{
		"2900": "Characteristic Extended Properties",
		"2901": "Characteristic User Description",
		"2902": "Client Characteristic Configuration",
		"2903": "Server Characteristic Configuration",
		"2904": "Characteristic Presentation Format",
		"2905": "Characteristic Aggregate Format",
	}

	mu sync.RWMutex
)

func lookup(table map[central.UUID]string, uuid string) string {
	mu.RLock()
	defer mu.RUnlock()
	return table[central.NormalizeUUID(uuid)]
}

// LookupService returns the name of a service UUID in any accepted form, or "".
func LookupService(uuid string) string {
	return lookup(services, uuid)
}

// LookupCharacteristic returns the name of a characteristic UUID, or "".
func LookupCharacteristic(uuid string) string {
	return lookup(characteristics, uuid)
}

// LookupDescriptor returns the name of a descriptor UUID, or "".
func LookupDescriptor(uuid string) string {
	return lookup(descriptors, uuid)
}

// RegisterService names a vendor service.
func RegisterService(uuid, name string) {
	mu.Lock()
	services[central.NormalizeUUID(uuid)] = name
	mu.Unlock()
}

// RegisterCharacteristic names a vendor characteristic.
func RegisterCharacteristic(uuid, name string) {
	mu.Lock()
	characteristics[central.NormalizeUUID(uuid)] = name
	mu.Unlock()
}
