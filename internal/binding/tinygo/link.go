package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/srg/rxble/internal/groutine"
	"github.com/srg/rxble/pkg/central"
)

// link is the connection to one peripheral; its commands run in order on loop.
type link struct {
	peripheral central.Peripheral
	loop       *groutine.Loop
	cancel     context.CancelFunc

	mu     sync.Mutex
	state  central.PeripheralState
	device Device

	services *hashmap.Map[string, Service]
	chars    *hashmap.Map[string, Characteristic]

	closeOnce sync.Once
}

func newLink(ctx context.Context, p central.Peripheral) (*link, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return &link{
		peripheral: p,
		loop:       groutine.NewLoop(ctx, "tinygo-link-"+p.ID),
		cancel:     cancel,
		state:      central.PeripheralConnecting,
		services:   hashmap.New[string, Service](),
		chars:      hashmap.New[string, Characteristic](),
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

func (l *link) Device() Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.device
}

func (l *link) attach(d Device) {
	l.mu.Lock()
	l.device = d
	l.state = central.PeripheralConnected
	l.mu.Unlock()
}

// tinygo exposes no attribute handles: services are identified by discovery position
func (l *link) addService(index int, s Service) central.Service {
	uuid := fromUUID(s.UUID())
	id := fmt.Sprintf("%s/%d", uuid, index)
	l.services.Set(id, s)
	return central.Service{ID: id, UUID: uuid, Primary: true, Peripheral: l.peripheral}
}

func (l *link) addCharacteristic(svc central.Service, index int, c Characteristic) central.Characteristic {
	uuid := fromUUID(c.UUID())
	id := fmt.Sprintf("%s/%s/%d", svc.ID, uuid, index)
	l.chars.Set(id, c)
	return central.Characteristic{ID: id, UUID: uuid, Service: svc}
}

func (l *link) hasServices(uuids []central.UUID) bool {
	for _, want := range uuids {
		found := false
		l.services.Range(func(_ string, s Service) bool {
			found = fromUUID(s.UUID()) == want
			return !found
		})
		if !found {
			return false
		}
	}
	return true
}
