package goble

import (
	"context"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/srg/rxble/internal/groutine"
	"github.com/srg/rxble/pkg/central"
)

// link is the connection to one peripheral. GATT commands for a peripheral run one at
// a time on the link loop, after the dial that created it.
type link struct {
	peripheral central.Peripheral
	loop       *groutine.Loop
	cancel     context.CancelFunc

	mu     sync.Mutex
	state  central.PeripheralState
	client ble.Client

	services *hashmap.Map[string, *ble.Service]
	chars    *hashmap.Map[string, *ble.Characteristic]

	closeOnce sync.Once
}

func newLink(ctx context.Context, p central.Peripheral) (*link, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &link{
		peripheral: p,
		loop:       groutine.NewLoop(ctx, "goble-link-"+p.ID),
		cancel:     cancel,
		state:      central.PeripheralConnecting,
		services:   hashmap.New[string, *ble.Service](),
		chars:      hashmap.New[string, *ble.Characteristic](),
	}, ctx
}

func (l *link) State() central.PeripheralState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *link) setState(st central.PeripheralState) {
	l.mu.Lock()
	l.state = st
	l.mu.Unlock()
}

func (l *link) Client() ble.Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client
}

func (l *link) attach(c ble.Client) {
	l.mu.Lock()
	l.client = c
	l.state = central.PeripheralConnected
	l.mu.Unlock()
}

func (l *link) addService(s *ble.Service, primary bool) central.Service {
	id := serviceID(s)
	l.services.Set(id, s)
	return central.Service{ID: id, UUID: fromBLEUUID(s.UUID), Primary: primary, Peripheral: l.peripheral}
}

func (l *link) addCharacteristic(svc central.Service, c *ble.Characteristic) central.Characteristic {
	id := characteristicID(c)
	l.chars.Set(id, c)
	return central.Characteristic{
		ID:         id,
		UUID:       fromBLEUUID(c.UUID),
		Properties: fromBLEProperty(c.Property),
		Value:      append([]byte(nil), c.Value...),
		Service:    svc,
	}
}

// hasServices reports whether every uuid was discovered on the link.
func (l *link) hasServices(uuids []central.UUID) bool {
	for _, want := range uuids {
		found := false
		l.services.Range(func(_ string, s *ble.Service) bool {
			if fromBLEUUID(s.UUID) == want {
				found = true
				return false
			}
			return true
		})
		if !found {
			return false
		}
	}
	return true
}
