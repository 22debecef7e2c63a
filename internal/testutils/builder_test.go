package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/rxble/pkg/central"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvertisementBuilderRendersBothForms(t *testing.T) {
	// GOAL: One builder configuration MUST render the same data as a go-ble mock and as a scan result
	//
	// TEST SCENARIO: Configure every field → build the go-ble mock → build the scan result → compare

	b := NewAdvertisementBuilder().
		WithName("Thermo").
		WithAddress("11:22:33:44:55:66").
		WithRSSI(-61).
		WithServices("181A").
		WithManufacturerData([]byte{0x4c, 0x00}).
		WithServiceData("181A", []byte{0x01, 0x02}).
		WithTxPower(4).
		WithConnectable(false)

	adv := b.Build()
	assert.Equal(t, "Thermo", adv.LocalName())
	assert.Equal(t, "11:22:33:44:55:66", adv.Addr().String())
	assert.Equal(t, -61, adv.RSSI())
	assert.Equal(t, []byte{0x4c, 0x00}, adv.ManufacturerData())
	require.Len(t, adv.ServiceData(), 1, "service data MUST be rendered")
	assert.Equal(t, []byte{0x01, 0x02}, adv.ServiceData()[0].Data)
	assert.Equal(t, 4, adv.TxPowerLevel())
	assert.False(t, adv.Connectable())

	sp := b.BuildScanned()
	assert.Equal(t, "11:22:33:44:55:66", sp.Peripheral.ID)
	assert.Equal(t, -61, sp.RSSI)
	assert.Equal(t, []central.UUID{central.NormalizeUUID("181A")}, sp.Advertisement.ServiceUUIDs)
	assert.Equal(t, []byte{0x01, 0x02}, sp.Advertisement.ServiceData[central.NormalizeUUID("181A")])
	require.NotNil(t, sp.Advertisement.Connectable)
	assert.False(t, *sp.Advertisement.Connectable)
	require.NotNil(t, sp.Advertisement.TxPowerLevel)
	assert.Equal(t, 4, *sp.Advertisement.TxPowerLevel)
}

func TestAdvertisementBuilderFromJSON(t *testing.T) {
	// GOAL: JSON templates MUST override only the fields they name
	//
	// TEST SCENARIO: Format a template → build → unset fields keep builder defaults

	sp := NewAdvertisementBuilder().
		FromJSON(`{"name": %q, "address": "AA:00:00:00:00:01", "services": ["180F"], "manufacturerData": "AQI="}`, "Tag").
		BuildScanned()

	assert.Equal(t, "Tag", sp.Peripheral.Name)
	assert.Equal(t, -50, sp.RSSI, "default RSSI MUST survive a template without rssi")
	assert.Equal(t, []byte{0x01, 0x02}, sp.Advertisement.ManufacturerData)
	assert.Nil(t, sp.Advertisement.TxPowerLevel)

	assert.Panics(t, func() { NewAdvertisementBuilder().FromJSON(`{`) }, "invalid templates MUST panic")
}

func TestMockAdvertisementTxPowerUnavailable(t *testing.T) {
	adv := CreateMockAdvertisement("n", "AA:00:00:00:00:02", -70).Build()
	assert.Equal(t, 127, adv.TxPowerLevel())
	assert.True(t, adv.Connectable())
}

func TestNewTestHelper(t *testing.T) {
	h := NewTestHelper(t)

	assert.Same(t, t, h.T)
	require.NotNil(t, h.Logger)
	assert.True(t, h.Logger.IsLevelEnabled(logrus.DebugLevel), "suite loggers MUST log at debug level")
}
