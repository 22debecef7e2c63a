package tinygo

import (
	"context"
	"fmt"
	"strconv"

	"github.com/srg/rxble/internal/groutine"
	"github.com/srg/rxble/pkg/central"
	"tinygo.org/x/bluetooth"
)

// Adapter is the part of *bluetooth.Adapter the binding drives.
type Adapter interface {
	Enable() error
	// Scan blocks until StopScan is called.
	Scan(fn func(Advertisement)) error
	StopScan() error
	Connect(ctx context.Context, address string) (Device, error)
	SetConnectHandler(fn func(address string, connected bool))
}

// Device is a connected peripheral.
type Device interface {
	DiscoverServices(uuids []bluetooth.UUID) ([]Service, error)
	Disconnect() error
}

// Service is a discovered GATT service.
type Service interface {
	UUID() bluetooth.UUID
	DiscoverCharacteristics(uuids []bluetooth.UUID) ([]Characteristic, error)
}

// Characteristic is a discovered GATT characteristic. *bluetooth.DeviceCharacteristic
// satisfies it on every platform.
type Characteristic interface {
	UUID() bluetooth.UUID
	Read(data []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

// ResponseWriter is implemented by characteristics that can write with response.
// tinygo bluetooth provides it on darwin only; the BlueZ backend offers write commands.
type ResponseWriter interface {
	Write(p []byte) (int, error)
}

// Advertisement is one scan result.
type Advertisement struct {
	Address string
	RSSI    int
	Data    central.AdvertisementData
}

// AdapterFactory returns the adapter used by New. Tests replace it.
var AdapterFactory = func() Adapter {
	return &defaultAdapter{adapter: bluetooth.DefaultAdapter}
}

type defaultAdapter struct {
	adapter *bluetooth.Adapter
}

func (d *defaultAdapter) Enable() error {
	return d.adapter.Enable()
}

func (d *defaultAdapter) Scan(fn func(Advertisement)) error {
	return d.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
		fn(fromScanResult(result))
	})
}

func (d *defaultAdapter) StopScan() error {
	return d.adapter.StopScan()
}

// Connect dials address. bluetooth.Adapter.Connect cannot be interrupted, so a dial
// abandoned through ctx is disconnected once it completes.
func (d *defaultAdapter) Connect(ctx context.Context, address string) (Device, error) {
	var addr bluetooth.Address
	addr.Set(address)

	type connectResult struct {
		device bluetooth.Device
		err    error
	}
	ch := make(chan connectResult, 1)
	groutine.Go(context.Background(), "tinygo-connect-"+address, func(context.Context) {
		device, err := d.adapter.Connect(addr, bluetooth.ConnectionParams{})
		ch <- connectResult{device, err}
	})

	select {
	case <-ctx.Done():
		groutine.Go(context.Background(), "tinygo-abandon-"+address, func(context.Context) {
			if r := <-ch; r.err == nil {
				_ = r.device.Disconnect()
			}
		})
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return &device{device: r.device}, nil
	}
}

func (d *defaultAdapter) SetConnectHandler(fn func(address string, connected bool)) {
	d.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		fn(device.Address.String(), connected)
	})
}

type device struct {
	device bluetooth.Device
}

func (d *device) DiscoverServices(uuids []bluetooth.UUID) ([]Service, error) {
	found, err := d.device.DiscoverServices(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]Service, 0, len(found))
	for i := range found {
		out = append(out, &service{service: found[i]})
	}
	return out, nil
}

func (d *device) Disconnect() error {
	return d.device.Disconnect()
}

type service struct {
	service bluetooth.DeviceService
}

func (s *service) UUID() bluetooth.UUID {
	return s.service.UUID()
}

func (s *service) DiscoverCharacteristics(uuids []bluetooth.UUID) ([]Characteristic, error) {
	found, err := s.service.DiscoverCharacteristics(uuids)
	if err != nil {
		return nil, err
	}
	out := make([]Characteristic, 0, len(found))
	for i := range found {
		out = append(out, &found[i])
	}
	return out, nil
}

// optional payload accessors, not implemented on every platform
type (
	serviceUUIDLister interface {
		ServiceUUIDs() []bluetooth.UUID
	}
	manufacturerDataLister interface {
		ManufacturerData() []bluetooth.ManufacturerDataElement
	}
	serviceDataLister interface {
		ServiceData() []bluetooth.ServiceDataElement
	}
)

func fromScanResult(r bluetooth.ScanResult) Advertisement {
	data := central.AdvertisementData{LocalName: r.LocalName()}
	payload := r.AdvertisementPayload

	if p, ok := payload.(serviceUUIDLister); ok {
		for _, u := range p.ServiceUUIDs() {
			data.ServiceUUIDs = append(data.ServiceUUIDs, fromUUID(u))
		}
	}
	if p, ok := payload.(manufacturerDataLister); ok {
		for _, md := range p.ManufacturerData() {
			// company identifier first, little endian, as on the air
			data.ManufacturerData = append(data.ManufacturerData, byte(md.CompanyID), byte(md.CompanyID>>8))
			data.ManufacturerData = append(data.ManufacturerData, md.Data...)
		}
	}
	if p, ok := payload.(serviceDataLister); ok {
		for _, sd := range p.ServiceData() {
			if data.ServiceData == nil {
				data.ServiceData = make(map[central.UUID][]byte)
			}
			data.ServiceData[fromUUID(sd.UUID)] = append([]byte(nil), sd.Data...)
		}
	}

	return Advertisement{
		Address: r.Address.String(),
		RSSI:    int(r.RSSI),
		Data:    data,
	}
}

func fromUUID(u bluetooth.UUID) central.UUID {
	return central.NormalizeUUID(u.String())
}

func toUUID(u central.UUID) (bluetooth.UUID, error) {
	s := string(u)
	switch len(s) {
	case 4:
		v, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return bluetooth.New16BitUUID(uint16(v)), nil
	case 8:
		v, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return bluetooth.New32BitUUID(uint32(v)), nil
	case 32:
		return bluetooth.ParseUUID(s[0:8] + "-" + s[8:12] + "-" + s[12:16] + "-" + s[16:20] + "-" + s[20:])
	default:
		return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q", s)
	}
}

func toUUIDs(uuids []central.UUID) ([]bluetooth.UUID, error) {
	if uuids == nil {
		return nil, nil
	}
	out := make([]bluetooth.UUID, 0, len(uuids))
	for _, u := range uuids {
		bu, err := toUUID(u)
		if err != nil {
			return nil, err
		}
		out = append(out, bu)
	}
	return out, nil
}
