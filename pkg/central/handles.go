package central

import "strings"

// Peripheral identifies a remote device. Equality is defined by ID, the identifier
// assigned by the platform; the connection state is always queried from the binding.
type Peripheral struct {
	ID   string
	Name string
}

// Equal reports whether p and o refer to the same device.
func (p Peripheral) Equal(o Peripheral) bool {
	return p.ID == o.ID
}

func (p Peripheral) String() string {
	if p.Name == "" {
		return p.ID
	}
	return p.Name + " (" + p.ID + ")"
}

// Service is a GATT service discovered on a peripheral.
type Service struct {
	ID         string
	UUID       UUID
	Primary    bool
	Peripheral Peripheral
}

// Equal compares binding handles, including the owning peripheral.
func (s Service) Equal(o Service) bool {
	return s.ID == o.ID && s.Peripheral.Equal(o.Peripheral)
}

// Property is a characteristic property bit.
type Property uint8

const (
	PropertyBroadcast Property = 1 << iota
	PropertyRead
	PropertyWriteWithoutResponse
	PropertyWrite
	PropertyNotify
	PropertyIndicate
	PropertySignedWrite
	PropertyExtended
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropertyBroadcast, "broadcast"},
	{PropertyRead, "read"},
	{PropertyWriteWithoutResponse, "write-without-response"},
	{PropertyWrite, "write"},
	{PropertyNotify, "notify"},
	{PropertyIndicate, "indicate"},
	{PropertySignedWrite, "signed-write"},
	{PropertyExtended, "extended"},
}

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	var names []string
	for _, it := range propertyNames {
		if p.Has(it.p) {
			names = append(names, it.name)
		}
	}
	return strings.Join(names, ",")
}

// Characteristic is a GATT characteristic with the last known value snapshot.
type Characteristic struct {
	ID         string
	UUID       UUID
	Properties Property
	Value      []byte
	Notifying  bool
	Service    Service
}

// Equal compares binding handles, including the owning service.
func (c Characteristic) Equal(o Characteristic) bool {
	return c.ID == o.ID && c.Service.Equal(o.Service)
}

// Peripheral returns the owning peripheral.
func (c Characteristic) Peripheral() Peripheral {
	return c.Service.Peripheral
}

// Descriptor is a GATT descriptor of a characteristic.
type Descriptor struct {
	ID             string
	UUID           UUID
	Characteristic Characteristic
}

// Equal compares binding handles, including the owning characteristic.
func (d Descriptor) Equal(o Descriptor) bool {
	return d.ID == o.ID && d.Characteristic.Equal(o.Characteristic)
}

// RSSIReading is the result of an RSSI read.
type RSSIReading struct {
	Peripheral Peripheral
	RSSI       int
}
