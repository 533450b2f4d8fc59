package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePointsIni = `
[device:pdu1]
description = main power distribution unit
conn_type   = socketcan
conn_param  = can0

[tag:pdu1.voltage]
name        = voltage
address     = 0x181:0
type        = float32
bit_length  = 32
data_length = 4

[tag:pdu1.breaker_closed]
name        = breaker_closed
address     = 0x181:4
type        = bool
bit_length  = 1
data_length = 1
`

func writeTempIni(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.points.ini")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadPointsIni(t *testing.T) {
	path := writeTempIni(t, samplePointsIni)

	devices, err := LoadPointsIni(path)
	require.NoError(t, err)
	require.Len(t, devices, 1)

	dev := devices[0]
	assert.Equal(t, "pdu1", dev.Name)
	assert.Equal(t, "main power distribution unit", dev.Description)
	assert.Equal(t, ConnDescriptor{Type: "socketcan", Param: "can0"}, dev.Conn)

	voltage, ok := dev.TagByName("voltage")
	require.True(t, ok)
	assert.Equal(t, TypeFloat32, voltage.Type)
	assert.Equal(t, "0x181:0", voltage.Address)

	breaker, ok := dev.TagByName("breaker_closed")
	require.True(t, ok)
	assert.Equal(t, TypeBool, breaker.Type)
}

func TestLoadPointsIniUnknownDeviceReference(t *testing.T) {
	path := writeTempIni(t, `
[tag:ghost.value]
name        = value
address     = 0x100:0
type        = int32
bit_length  = 32
data_length = 4
`)

	_, err := LoadPointsIni(path)
	assert.Error(t, err)
}

func TestAdoptDevice(t *testing.T) {
	path := writeTempIni(t, samplePointsIni)
	devices, err := LoadPointsIni(path)
	require.NoError(t, err)

	drv := newDriverForTest(t)
	drv.AdoptDevice(devices[0])

	got := drv.Devices()
	require.Len(t, got, 1)
	assert.Same(t, drv, got[0].Driver())
}
