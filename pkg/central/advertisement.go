package central

// AdvertisementData is an immutable snapshot of an advertisement payload.
type AdvertisementData struct {
	LocalName             string
	ManufacturerData      []byte
	ServiceData           map[UUID][]byte
	ServiceUUIDs          []UUID
	OverflowServiceUUIDs  []UUID
	SolicitedServiceUUIDs []UUID
	TxPowerLevel          *int
	Connectable           *bool
}

// AdvertisesAll reports whether every UUID of required is advertised as a service.
func (a AdvertisementData) AdvertisesAll(required []UUID) bool {
	return isSubset(required, a.ServiceUUIDs)
}

// ScannedPeripheral is one discovery result.
type ScannedPeripheral struct {
	Peripheral    Peripheral
	Advertisement AdvertisementData
	RSSI          int
}
