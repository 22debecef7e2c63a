package testutils

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	blelib "github.com/go-ble/ble"
	mocks "github.com/srg/rxble/internal/testutils/mocks/goble"
	"github.com/srg/rxble/pkg/central"
	"github.com/stretchr/testify/mock"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Address  string          `json:"address,omitempty"`
	Name     string          `json:"name,omitempty"`
	RSSI     int             `json:"rssi,omitempty"`
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder describes a GATT peripheral once and renders it either as a
// mocked go-ble device (Build) or as a profile served by FakeBinding (BuildProfile).
type PeripheralDeviceBuilder struct {
	profile            DeviceProfileConfig
	scanAdvertisements []blelib.Advertisement
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		profile: DeviceProfileConfig{
			Address:  "AA:BB:CC:DD:EE:FF",
			RSSI:     -50,
			Services: []ServiceConfig{},
		},
	}
}

// WithAddress sets the peripheral identifier.
func (b *PeripheralDeviceBuilder) WithAddress(addr string) *PeripheralDeviceBuilder {
	b.profile.Address = addr
	return b
}

// WithName sets the peripheral name.
func (b *PeripheralDeviceBuilder) WithName(name string) *PeripheralDeviceBuilder {
	b.profile.Name = name
	return b
}

// WithRSSI sets the RSSI reported by RSSI reads.
func (b *PeripheralDeviceBuilder) WithRSSI(rssi int) *PeripheralDeviceBuilder {
	b.profile.RSSI = rssi
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON. Address and RSSI keep their defaults
// when the JSON omits them.
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	config := b.profile
	config.Services = nil
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithScanAdvertisements returns an AdvertisementArrayBuilder that will return this PeripheralDeviceBuilder on Build()
func (b *PeripheralDeviceBuilder) WithScanAdvertisements() *AdvertisementArrayBuilder[*PeripheralDeviceBuilder] {
	arrayBuilder := NewAdvertisementArrayBuilder[*PeripheralDeviceBuilder]()
	arrayBuilder.parent = b
	arrayBuilder.buildFunc = func(parent *PeripheralDeviceBuilder, ads []blelib.Advertisement) *PeripheralDeviceBuilder {
		parent.scanAdvertisements = append(parent.scanAdvertisements, ads...)
		return parent
	}
	return arrayBuilder
}

// parseCharacteristicProperties converts a comma separated property list. An empty
// list means "read,write,notify".
func parseCharacteristicProperties(props string) blelib.Property {
	if strings.TrimSpace(props) == "" {
		return blelib.CharRead | blelib.CharWrite | blelib.CharNotify
	}

	var property blelib.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(strings.ToLower(p)) {
		case "broadcast":
			property |= blelib.CharBroadcast
		case "read":
			property |= blelib.CharRead
		case "write-without-response", "write_without_response", "writenr":
			property |= blelib.CharWriteNR
		case "write":
			property |= blelib.CharWrite
		case "notify":
			property |= blelib.CharNotify
		case "indicate":
			property |= blelib.CharIndicate
		default:
			panic(fmt.Sprintf("parseCharacteristicProperties: unknown property %q", p))
		}
	}
	return property
}

// MockPeripheral is a mocked go-ble device together with the connection it dials.
type MockPeripheral struct {
	Device   *mocks.MockDevice
	Client   *mocks.MockClient
	Profile  *blelib.Profile
	Services []*blelib.Service

	mu           sync.Mutex
	handlers     map[*blelib.Characteristic]blelib.NotificationHandler
	disconnected chan struct{}
	closeOnce    sync.Once
}

// Disconnect simulates a link loss reported by the peripheral.
func (m *MockPeripheral) Disconnect() {
	m.closeOnce.Do(func() { close(m.disconnected) })
}

// Notify delivers data through the notification handler subscribed for charUUID.
// Returns false when nothing is subscribed.
func (m *MockPeripheral) Notify(charUUID string, data []byte) bool {
	want := central.NormalizeUUID(charUUID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for c, h := range m.handlers {
		if central.NormalizeUUID(c.UUID.String()) == want {
			h(data)
			return true
		}
	}
	return false
}

// Subscribed reports whether a notification handler is registered for charUUID.
func (m *MockPeripheral) Subscribed(charUUID string) bool {
	want := central.NormalizeUUID(charUUID)
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.handlers {
		if central.NormalizeUUID(c.UUID.String()) == want {
			return true
		}
	}
	return false
}

// Build creates a mocked go-ble device serving the configured profile. Attribute
// handles are assigned sequentially the way a GATT server lays them out.
func (b *PeripheralDeviceBuilder) Build() *MockPeripheral {
	mp := &MockPeripheral{
		Device:       &mocks.MockDevice{},
		Client:       &mocks.MockClient{},
		handlers:     make(map[*blelib.Characteristic]blelib.NotificationHandler),
		disconnected: make(chan struct{}),
	}

	handle := uint16(0x0001)
	for _, svcConfig := range b.profile.Services {
		svc := &blelib.Service{UUID: blelib.MustParse(svcConfig.UUID), Handle: handle}
		handle++
		for _, charConfig := range svcConfig.Characteristics {
			char := &blelib.Characteristic{
				UUID:        blelib.MustParse(charConfig.UUID),
				Property:    parseCharacteristicProperties(charConfig.Properties),
				Value:       charConfig.Value,
				Handle:      handle,
				ValueHandle: handle + 1,
			}
			handle += 2
			if char.Property&(blelib.CharNotify|blelib.CharIndicate) != 0 {
				char.Descriptors = []*blelib.Descriptor{{UUID: blelib.UUID16(0x2902), Handle: handle}}
				handle++
			}
			svc.Characteristics = append(svc.Characteristics, char)
		}
		svc.EndHandle = handle - 1
		mp.Services = append(mp.Services, svc)
	}
	mp.Profile = &blelib.Profile{Services: mp.Services}

	client := mp.Client
	mp.Device.On("Dial", mock.Anything, mock.Anything).Return(client, nil).Maybe()
	mp.Device.On("Stop").Return(nil).Maybe()
	mp.Device.On("Scan", mock.Anything, mock.Anything, mock.Anything).Return(func(ctx context.Context, _ bool, h blelib.AdvHandler) error {
		for _, adv := range b.scanAdvertisements {
			h(adv)
		}
		<-ctx.Done()
		return ctx.Err()
	}).Maybe()

	client.On("Name").Return(b.profile.Name).Maybe()
	client.On("Disconnected").Return(mp.disconnected).Maybe()
	client.On("CancelConnection").Return(nil).Run(func(mock.Arguments) { mp.Disconnect() }).Maybe()
	client.On("ReadRSSI").Return(b.profile.RSSI).Maybe()
	client.On("DiscoverServices", mock.Anything).Return(mp.Services, nil).Maybe()

	for _, svc := range mp.Services {
		client.On("DiscoverIncludedServices", mock.Anything, svc).Return([]*blelib.Service{}, nil).Maybe()
		client.On("DiscoverCharacteristics", mock.Anything, svc).Return(svc.Characteristics, nil).Maybe()

		for _, char := range svc.Characteristics {
			char := char
			descriptors := char.Descriptors
			if descriptors == nil {
				descriptors = []*blelib.Descriptor{}
			}
			client.On("DiscoverDescriptors", mock.Anything, char).Return(descriptors, nil).
				Run(func(mock.Arguments) {
					if len(char.Descriptors) > 0 {
						char.CCCD = char.Descriptors[0]
					}
				}).Maybe()
			client.On("Subscribe", char, mock.Anything, mock.Anything).Return(nil).
				Run(func(args mock.Arguments) {
					mp.mu.Lock()
					mp.handlers[char] = args.Get(2).(blelib.NotificationHandler)
					mp.mu.Unlock()
				}).Maybe()
			client.On("Unsubscribe", char, mock.Anything).Return(nil).
				Run(func(mock.Arguments) {
					mp.mu.Lock()
					delete(mp.handlers, char)
					mp.mu.Unlock()
				}).Maybe()
			client.On("WriteCharacteristic", char, mock.Anything, mock.Anything).Return(nil).Maybe()

			if char.Property&blelib.CharRead != 0 {
				client.On("ReadCharacteristic", char).Return(char.Value, nil).Maybe()
			} else {
				client.On("ReadCharacteristic", char).Return(nil, fmt.Errorf("characteristic does not support read")).Maybe()
			}
		}
	}

	return mp
}

// PeripheralProfile is the GATT database FakeBinding answers commands from.
type PeripheralProfile struct {
	Peripheral central.Peripheral
	RSSI       int
	Services   []ServiceProfile
}

// ServiceProfile is one service of a PeripheralProfile.
type ServiceProfile struct {
	Service         central.Service
	Characteristics []central.Characteristic
}

// BuildProfile renders the configuration as a FakeBinding profile. Handles are
// derived from the UUIDs: "svc-<uuid>" and "chr-<uuid>".
func (b *PeripheralDeviceBuilder) BuildProfile() *PeripheralProfile {
	p := central.Peripheral{ID: b.profile.Address, Name: b.profile.Name}
	profile := &PeripheralProfile{Peripheral: p, RSSI: b.profile.RSSI}

	for _, svcConfig := range b.profile.Services {
		uuid := central.NormalizeUUID(svcConfig.UUID)
		svc := central.Service{ID: "svc-" + uuid.String(), UUID: uuid, Primary: true, Peripheral: p}
		sp := ServiceProfile{Service: svc}
		for _, charConfig := range svcConfig.Characteristics {
			cu := central.NormalizeUUID(charConfig.UUID)
			sp.Characteristics = append(sp.Characteristics, central.Characteristic{
				ID:         "chr-" + cu.String(),
				UUID:       cu,
				Properties: propertiesFromConfig(charConfig.Properties),
				Value:      charConfig.Value,
				Service:    svc,
			})
		}
		profile.Services = append(profile.Services, sp)
	}
	return profile
}

func propertiesFromConfig(props string) central.Property {
	bp := parseCharacteristicProperties(props)
	var out central.Property
	for _, m := range []struct {
		ble     blelib.Property
		central central.Property
	}{
		{blelib.CharBroadcast, central.PropertyBroadcast},
		{blelib.CharRead, central.PropertyRead},
		{blelib.CharWriteNR, central.PropertyWriteWithoutResponse},
		{blelib.CharWrite, central.PropertyWrite},
		{blelib.CharNotify, central.PropertyNotify},
		{blelib.CharIndicate, central.PropertyIndicate},
	} {
		if bp&m.ble != 0 {
			out |= m.central
		}
	}
	return out
}

// Service returns the service with uuid. Panics when missing.
func (p *PeripheralProfile) Service(uuid string) central.Service {
	want := central.NormalizeUUID(uuid)
	for _, s := range p.Services {
		if s.Service.UUID == want {
			return s.Service
		}
	}
	panic(fmt.Sprintf("PeripheralProfile: service %s not configured", uuid))
}

// Characteristic returns the characteristic charUUID of service svcUUID. Panics when missing.
func (p *PeripheralProfile) Characteristic(svcUUID, charUUID string) central.Characteristic {
	svc, cu := central.NormalizeUUID(svcUUID), central.NormalizeUUID(charUUID)
	for _, s := range p.Services {
		if s.Service.UUID != svc {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID == cu {
				return c
			}
		}
	}
	panic(fmt.Sprintf("PeripheralProfile: characteristic %s/%s not configured", svcUUID, charUUID))
}

func (p *PeripheralProfile) services() []central.Service {
	out := make([]central.Service, 0, len(p.Services))
	for _, s := range p.Services {
		out = append(out, s.Service)
	}
	return out
}

func (p *PeripheralProfile) characteristics(svc central.Service) []central.Characteristic {
	for _, s := range p.Services {
		if s.Service.Equal(svc) {
			return s.Characteristics
		}
	}
	return nil
}
