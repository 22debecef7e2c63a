package goble

import (
	"fmt"

	"github.com/go-ble/ble"
	"github.com/srg/rxble/pkg/central"
)

// advertisement fields go-ble reports as 127 when absent
const txPowerUnavailable = 127

func fromBLEUUID(u ble.UUID) central.UUID {
	return central.NormalizeUUID(u.String())
}

func fromBLEUUIDs(uuids []ble.UUID) []central.UUID {
	if len(uuids) == 0 {
		return nil
	}
	out := make([]central.UUID, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, fromBLEUUID(u))
	}
	return out
}

// toBLEUUIDs converts a filter. A nil filter stays nil, which go-ble treats as "all".
func toBLEUUIDs(uuids []central.UUID) ([]ble.UUID, error) {
	if uuids == nil {
		return nil, nil
	}
	out := make([]ble.UUID, 0, len(uuids))
	for _, u := range uuids {
		parsed, err := ble.Parse(u.String())
		if err != nil {
			return nil, fmt.Errorf("invalid UUID %q: %w", u, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

func fromBLEAdvertisement(a ble.Advertisement) central.AdvertisementData {
	data := central.AdvertisementData{
		LocalName:             a.LocalName(),
		ServiceUUIDs:          fromBLEUUIDs(a.Services()),
		OverflowServiceUUIDs:  fromBLEUUIDs(a.OverflowService()),
		SolicitedServiceUUIDs: fromBLEUUIDs(a.SolicitedService()),
	}
	if md := a.ManufacturerData(); len(md) > 0 {
		data.ManufacturerData = append([]byte(nil), md...)
	}
	if sd := a.ServiceData(); len(sd) > 0 {
		data.ServiceData = make(map[central.UUID][]byte, len(sd))
		for _, entry := range sd {
			data.ServiceData[fromBLEUUID(entry.UUID)] = append([]byte(nil), entry.Data...)
		}
	}
	if tx := a.TxPowerLevel(); tx != txPowerUnavailable {
		data.TxPowerLevel = &tx
	}
	connectable := a.Connectable()
	data.Connectable = &connectable
	return data
}

// advertisesAny mimics a hardware service filter: any listed UUID matches. An empty
// filter requires nothing and matches every advertisement.
func advertisesAny(data central.AdvertisementData, filter []central.UUID) bool {
	if len(filter) == 0 {
		return true
	}
	for _, want := range filter {
		for _, have := range data.ServiceUUIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

var propertyMap = []struct {
	ble     ble.Property
	central central.Property
}{
	{ble.CharBroadcast, central.PropertyBroadcast},
	{ble.CharRead, central.PropertyRead},
	{ble.CharWriteNR, central.PropertyWriteWithoutResponse},
	{ble.CharWrite, central.PropertyWrite},
	{ble.CharNotify, central.PropertyNotify},
	{ble.CharIndicate, central.PropertyIndicate},
	{ble.CharSignedWrite, central.PropertySignedWrite},
	{ble.CharExtended, central.PropertyExtended},
}

func fromBLEProperty(p ble.Property) central.Property {
	var out central.Property
	for _, m := range propertyMap {
		if p&m.ble != 0 {
			out |= m.central
		}
	}
	return out
}

func serviceID(s *ble.Service) string {
	return fmt.Sprintf("%s/%04x", fromBLEUUID(s.UUID), s.Handle)
}

func characteristicID(c *ble.Characteristic) string {
	return fmt.Sprintf("%s/%04x", fromBLEUUID(c.UUID), c.Handle)
}

func descriptorID(d *ble.Descriptor) string {
	return fmt.Sprintf("%s/%04x", fromBLEUUID(d.UUID), d.Handle)
}
