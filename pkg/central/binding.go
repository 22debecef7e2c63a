package central

import (
	"time"

	"github.com/srg/rxble/pkg/rx"
)

// WriteType selects the ATT write procedure.
type WriteType int

const (
	WriteWithResponse WriteType = iota
	WriteWithoutResponse
)

func (t WriteType) String() string {
	if t == WriteWithoutResponse {
		return "without-response"
	}
	return "with-response"
}

// ScanOptions are passed through to the binding's scan command.
type ScanOptions struct {
	AllowDuplicates       bool
	SolicitedServiceUUIDs []UUID
}

// ConnectOptions are passed through to the binding's connect command.
type ConnectOptions struct {
	Timeout               time.Duration
	NotifyOnDisconnection bool
}

// EventKind tags an Event raised by a binding.
type EventKind int

const (
	EventStateChanged EventKind = iota
	EventPeripheralDiscovered
	EventPeripheralConnected
	EventPeripheralConnectFailed
	EventPeripheralDisconnected
	EventServicesDiscovered
	EventIncludedServicesDiscovered
	EventCharacteristicsDiscovered
	EventDescriptorsDiscovered
	EventValueUpdated
	EventValueWritten
	EventNotificationStateUpdated
	EventRSSIRead
	EventNameUpdated
	EventServicesModified
)

var eventKindNames = map[EventKind]string{
	EventStateChanged:               "state_changed",
	EventPeripheralDiscovered:       "peripheral_discovered",
	EventPeripheralConnected:        "peripheral_connected",
	EventPeripheralConnectFailed:    "peripheral_connect_failed",
	EventPeripheralDisconnected:     "peripheral_disconnected",
	EventServicesDiscovered:         "services_discovered",
	EventIncludedServicesDiscovered: "included_services_discovered",
	EventCharacteristicsDiscovered:  "characteristics_discovered",
	EventDescriptorsDiscovered:      "descriptors_discovered",
	EventValueUpdated:               "value_updated",
	EventValueWritten:               "value_written",
	EventNotificationStateUpdated:   "notification_state_updated",
	EventRSSIRead:                   "rssi_read",
	EventNameUpdated:                "name_updated",
	EventServicesModified:           "services_modified",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return "unknown_event"
}

// Event is a tagged callback raised by a binding. Which fields are set depends on Kind:
//
//   - StateChanged: State
//   - PeripheralDiscovered: Peripheral, Advertisement, RSSI
//   - PeripheralConnected, PeripheralConnectFailed, PeripheralDisconnected: Peripheral, Err
//   - ServicesDiscovered, ServicesModified: Peripheral, Services, Err
//   - IncludedServicesDiscovered: Service, Services, Err
//   - CharacteristicsDiscovered: Service, Characteristics, Err
//   - DescriptorsDiscovered: Characteristic, Descriptors, Err
//   - ValueUpdated, ValueWritten, NotificationStateUpdated: Characteristic, Err
//   - RSSIRead: Peripheral, RSSI, Err
//   - NameUpdated: Peripheral
type Event struct {
	Kind            EventKind
	State           AdapterState
	Peripheral      Peripheral
	Advertisement   AdvertisementData
	RSSI            int
	Service         Service
	Services        []Service
	Characteristic  Characteristic
	Characteristics []Characteristic
	Descriptors     []Descriptor
	Err             error
}

// StateSource provides the adapter state and the event stream carrying its changes.
type StateSource interface {
	State() AdapterState
	Events() rx.Stream[Event]
}

// AdapterBinding is the platform BLE central API. Commands are fire-and-forget: they
// must not block, and their outcome is reported through Events. Events may be raised
// from any goroutine; bindings publish them through an EventBroker so that they reach
// subscribers on one scheduler.
type AdapterBinding interface {
	StateSource

	PeripheralState(id string) PeripheralState

	ScanForPeripherals(uuids []UUID, opts *ScanOptions)
	StopScan()

	Connect(p Peripheral, opts *ConnectOptions)
	CancelConnection(p Peripheral)
	RetrievePeripherals(ids []string) []Peripheral
	RetrieveConnectedPeripherals(uuids []UUID) []Peripheral

	DiscoverServices(p Peripheral, uuids []UUID)
	DiscoverIncludedServices(s Service, uuids []UUID)
	DiscoverCharacteristics(s Service, uuids []UUID)
	DiscoverDescriptors(c Characteristic)

	ReadValue(c Characteristic)
	WriteValue(c Characteristic, data []byte, t WriteType)
	SetNotifyValue(c Characteristic, enabled bool)
	ReadRSSI(p Peripheral)
}
