// Package central exposes the BLE central role as composable streams.
//
// A Manager is built from one AdapterBinding, one scheduler and one logger. It offers:
//
//   - Scanner: scan sessions multiplexed over a single hardware scan
//   - Connector: connect, cancel and monitor peripheral connections
//   - Operations: discovery, read, write, notify and RSSI on connected peripherals
//
// Every operation returns a deferred rx.Stream: no command reaches the binding until
// the stream is subscribed, and each subscription issues its own command. Every
// operation is gated by the adapter state; peripheral operations are additionally
// terminated by a disconnection of their peripheral.
//
// Example:
//
//	mgr := central.NewManager(binding, loop, logger)
//	p, err := rx.First(ctx, mgr.Connect(peripheral, nil))
//	if err != nil {
//	    return err
//	}
//	c, err := rx.First(ctx, mgr.CharacteristicWithUUID(svc, central.NormalizeUUID("2a37")))
package central
