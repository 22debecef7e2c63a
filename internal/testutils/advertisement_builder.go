package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-ble/ble"
	mocks "github.com/srg/rxble/internal/testutils/mocks/goble"
	"github.com/srg/rxble/pkg/central"
)

// AdvertisementBuilder builds advertisements for tests. The same configuration can be
// rendered as a go-ble mock (Build) for binding tests or as a central.ScannedPeripheral
// (BuildScanned) for tests running against the fake binding.
type AdvertisementBuilder struct {
	name        string
	address     string
	rssi        int
	services    []string
	manufData   []byte
	serviceData map[string][]byte
	txPower     *int
	connectable bool
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement with RSSI -50.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{
		rssi:        -50,
		serviceData: make(map[string][]byte),
		connectable: true,
	}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.name = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.rssi = rssi
	return b
}

// WithServices adds service UUIDs to the advertisement.
// UUIDs can be in short form (e.g., "180D") or full form.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.services = append(b.services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.manufData = data
	return b
}

// WithServiceData adds service-specific data for the given service UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.serviceData[uuid] = data
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.txPower = &power
	return b
}

// WithConnectable sets whether the device accepts connections.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	b.connectable = c
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var data struct {
		Name             *string           `json:"name"`
		Address          *string           `json:"address"`
		RSSI             *int              `json:"rssi"`
		Services         []string          `json:"services"`
		ManufacturerData []byte            `json:"manufacturerData"`
		ServiceData      map[string][]byte `json:"serviceData"`
		TxPower          *int              `json:"txPower"`
		Connectable      *bool             `json:"connectable"`
	}
	if err := json.Unmarshal([]byte(jsonStr), &data); err != nil {
		panic(fmt.Sprintf("AdvertisementBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	if data.Name != nil {
		b.name = *data.Name
	}
	if data.Address != nil {
		b.address = *data.Address
	}
	if data.RSSI != nil {
		b.rssi = *data.RSSI
	}
	if data.Services != nil {
		b.services = data.Services
	}
	if data.ManufacturerData != nil {
		b.manufData = data.ManufacturerData
	}
	for uuid, sd := range data.ServiceData {
		b.serviceData[uuid] = sd
	}
	if data.TxPower != nil {
		b.txPower = data.TxPower
	}
	if data.Connectable != nil {
		b.connectable = *data.Connectable
	}
	return b
}

// Build creates a go-ble advertisement mock. Every accessor is stubbed, unset fields
// return their zero value (127 for an unavailable TX power).
func (b *AdvertisementBuilder) Build() *mocks.MockAdvertisement {
	adv := &mocks.MockAdvertisement{}

	var bleServices []ble.UUID
	for _, s := range b.services {
		bleServices = append(bleServices, ble.MustParse(s))
	}

	var bleServiceData []ble.ServiceData
	for _, uuid := range b.serviceDataKeys() {
		bleServiceData = append(bleServiceData, ble.ServiceData{
			UUID: ble.MustParse(uuid),
			Data: b.serviceData[uuid],
		})
	}

	addr := &mocks.MockAddr{}
	addr.On("String").Return(b.address).Maybe()

	txPower := 127
	if b.txPower != nil {
		txPower = *b.txPower
	}

	adv.On("Addr").Return(addr).Maybe()
	adv.On("LocalName").Return(b.name).Maybe()
	adv.On("RSSI").Return(b.rssi).Maybe()
	adv.On("ManufacturerData").Return(b.manufData).Maybe()
	adv.On("ServiceData").Return(bleServiceData).Maybe()
	adv.On("Services").Return(bleServices).Maybe()
	adv.On("OverflowService").Return([]ble.UUID(nil)).Maybe()
	adv.On("SolicitedService").Return([]ble.UUID(nil)).Maybe()
	adv.On("Connectable").Return(b.connectable).Maybe()
	adv.On("TxPowerLevel").Return(txPower).Maybe()

	return adv
}

// BuildScanned renders the advertisement as a discovery result of the central layer.
func (b *AdvertisementBuilder) BuildScanned() central.ScannedPeripheral {
	data := central.AdvertisementData{
		LocalName:        b.name,
		ManufacturerData: b.manufData,
		TxPowerLevel:     b.txPower,
	}
	for _, s := range b.services {
		data.ServiceUUIDs = append(data.ServiceUUIDs, central.NormalizeUUID(s))
	}
	if len(b.serviceData) > 0 {
		data.ServiceData = make(map[central.UUID][]byte, len(b.serviceData))
		for uuid, sd := range b.serviceData {
			data.ServiceData[central.NormalizeUUID(uuid)] = sd
		}
	}
	connectable := b.connectable
	data.Connectable = &connectable

	return central.ScannedPeripheral{
		Peripheral:    central.Peripheral{ID: b.address, Name: b.name},
		Advertisement: data,
		RSSI:          b.rssi,
	}
}

func (b *AdvertisementBuilder) serviceDataKeys() []string {
	keys := make([]string, 0, len(b.serviceData))
	for k := range b.serviceData {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AdvertisementArrayBuilder collects advertisements and hands them to a parent builder.
//
// Example:
//
//	heart := NewAdvertisementBuilder().WithName("HeartRate").WithServices("180D").Build()
//	device := NewPeripheralDeviceBuilder().
//	    WithScanAdvertisements().
//	        WithAdvertisements(heart).
//	        Build(). // Returns *PeripheralDeviceBuilder
//	    WithService("180D").
//	    Build()
type AdvertisementArrayBuilder[T any] struct {
	advertisements []ble.Advertisement
	parent         T
	buildFunc      func(T, []ble.Advertisement) T
}

// NewAdvertisementArrayBuilder creates a new array builder with the specified generic type.
func NewAdvertisementArrayBuilder[T any]() *AdvertisementArrayBuilder[T] {
	return &AdvertisementArrayBuilder[T]{
		advertisements: make([]ble.Advertisement, 0),
	}
}

// WithAdvertisements adds pre-existing Advertisements to the array.
func (ab *AdvertisementArrayBuilder[T]) WithAdvertisements(ads ...ble.Advertisement) *AdvertisementArrayBuilder[T] {
	ab.advertisements = append(ab.advertisements, ads...)
	return ab
}

// WithNewAdvertisement returns a builder whose Build adds the advertisement to this array.
func (ab *AdvertisementArrayBuilder[T]) WithNewAdvertisement() *AdvertisementArrayBuilderItem[T] {
	return &AdvertisementArrayBuilderItem[T]{
		AdvertisementBuilder: NewAdvertisementBuilder(),
		parent:               ab,
	}
}

// Build returns the parent if it exists and has a buildFunc, otherwise returns the array
func (ab *AdvertisementArrayBuilder[T]) Build() T {
	if ab.buildFunc != nil {
		return ab.buildFunc(ab.parent, ab.advertisements)
	}
	var result interface{} = ab.advertisements
	return result.(T)
}

// AdvertisementArrayBuilderItem wraps AdvertisementBuilder to return to the parent array builder.
type AdvertisementArrayBuilderItem[T any] struct {
	*AdvertisementBuilder
	parent *AdvertisementArrayBuilder[T]
}

// Build adds the advertisement to the parent array and returns the array builder
func (abi *AdvertisementArrayBuilderItem[T]) Build() *AdvertisementArrayBuilder[T] {
	abi.parent.advertisements = append(abi.parent.advertisements, abi.AdvertisementBuilder.Build())
	return abi.parent
}
