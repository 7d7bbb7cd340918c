package bmetemp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"

	"github.com/chvck/bmetemp/bme280"
)

// Register traffic of one read at 0x76: chip id, both calibration blocks, then a
// forced measurement of 23.45°C.
var pbRead2345 = []i2ctest.IO{
	{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x60}},
	{Addr: 0x76, W: []byte{0x88}, R: []byte{
		0x70, 0x6b, 0x43, 0x67, 0x18, 0xfc, 0x7d, 0x8e, 0x43, 0xd6, 0xd0, 0x0b, 0x27,
		0x0b, 0x8c, 0x00, 0xf9, 0xff, 0x8c, 0x3c, 0xf8, 0xc6, 0x70, 0x17, 0x00, 0x4b,
	}},
	{Addr: 0x76, W: []byte{0xE1}, R: []byte{0x6a, 0x01, 0x00, 0x13, 0x29, 0x03, 0x1e}},
	{Addr: 0x76, W: []byte{0xF2, 0x01}},
	{Addr: 0x76, W: []byte{0xF4, 0x25}},
	{Addr: 0x76, W: []byte{0xF3}, R: []byte{0x00}},
	{Addr: 0x76, W: []byte{0xF7}, R: []byte{0x65, 0x5a, 0xc0, 0x7d, 0xa7, 0x70, 0x80, 0x00}},
}

// countingBus records how often the bus is released.
type countingBus struct {
	*i2ctest.Playback
	closed int
}

func (cb *countingBus) Close() error {
	cb.closed++
	return cb.Playback.Close()
}

func newPlaybackDriver(ops []i2ctest.IO) (*PeriphDriver, *countingBus) {
	bus := &countingBus{Playback: &i2ctest.Playback{Ops: ops, DontPanic: true}}
	driver := NewPeriphDriver(nil)
	driver.open = func(port int) (i2c.BusCloser, error) {
		return bus, nil
	}
	return driver, bus
}

func TestPeriphDriver_Read(t *testing.T) {
	driver, bus := newPlaybackDriver(pbRead2345)

	sample, err := NewSensorReader(driver, defaultSensorConfig).Read()
	require.NoError(t, err)

	assert.InDelta(t, 23.45, sample.Temperature, 1e-2)
	assert.InDelta(t, 1004.02, sample.Pressure, 1e-2)
	assert.InDelta(t, 70.25, sample.Humidity, 1e-2)
	assert.InDelta(t, 2345, sample.Centidegrees(), 1)
	assert.Equal(t, 1, bus.closed)
	assert.Equal(t, len(pbRead2345), bus.Count)
}

func TestPeriphDriver_ReadBusUnavailable(t *testing.T) {
	driver := NewPeriphDriver(nil)
	driver.open = func(port int) (i2c.BusCloser, error) {
		return nil, errors.New("i2creg: can't open unknown bus: \"1\"")
	}

	_, err := NewSensorReader(driver, defaultSensorConfig).Read()

	var deviceErr *DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, "open bus", deviceErr.Op)
}

func TestPeriphDriver_ReadDeviceAbsent(t *testing.T) {
	driver, bus := newPlaybackDriver(nil)

	_, err := NewSensorReader(driver, defaultSensorConfig).Read()

	var deviceErr *DeviceError
	require.ErrorAs(t, err, &deviceErr)
	assert.Equal(t, "load calibration", deviceErr.Op)
	assert.Equal(t, 1, bus.closed)
}

func TestPeriphDriver_ReadWrongChip(t *testing.T) {
	driver, bus := newPlaybackDriver([]i2ctest.IO{
		{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x58}},
	})

	_, err := NewSensorReader(driver, defaultSensorConfig).Read()

	var calErr *CalibrationError
	require.ErrorAs(t, err, &calErr)
	assert.ErrorIs(t, err, bme280.ErrUnexpectedChipID)
	assert.Equal(t, 1, bus.closed)
}

func TestPeriphDriver_ReadBlankCalibration(t *testing.T) {
	ops := append([]i2ctest.IO{}, pbRead2345[:3]...)
	ops[1] = i2ctest.IO{Addr: 0x76, W: []byte{0x88}, R: make([]byte, 26)}
	driver, bus := newPlaybackDriver(ops)

	_, err := NewSensorReader(driver, defaultSensorConfig).Read()

	var calErr *CalibrationError
	require.ErrorAs(t, err, &calErr)
	assert.ErrorIs(t, err, bme280.ErrInvalidCalibration)
	assert.Equal(t, 1, bus.closed)
}

func TestPeriphDriver_SampleForeignCalibration(t *testing.T) {
	driver, bus := newPlaybackDriver(nil)
	handle, err := driver.OpenBus(1)
	require.NoError(t, err)

	_, err = driver.Sample(handle, 0x76, mockCalibration{addr: 0x76})

	var calErr *CalibrationError
	require.ErrorAs(t, err, &calErr)
	require.NoError(t, handle.Close())
	assert.Equal(t, 1, bus.closed)
}

func TestNewSensorDriver(t *testing.T) {
	driver, err := NewSensorDriver(SensorConfig{Driver: DriverPeriph, MeasurementTimeoutMs: 250})
	require.NoError(t, err)
	periph, ok := driver.(*PeriphDriver)
	require.True(t, ok)
	assert.Equal(t, 250, int(periph.opts.MeasurementTimeout.Milliseconds()))

	driver, err = NewSensorDriver(SensorConfig{Driver: DriverDevfs})
	require.NoError(t, err)
	assert.IsType(t, &DevfsDriver{}, driver)

	_, err = NewSensorDriver(SensorConfig{Driver: "spi"})
	assert.Error(t, err)
}
