package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chvck/bmetemp"
)

type fakeBus struct {
	closed int
}

func (fb *fakeBus) Close() error {
	fb.closed++
	return nil
}

type fakeCalibration uint16

func (fc fakeCalibration) Address() uint16 {
	return uint16(fc)
}

type fakeDriver struct {
	bus       *fakeBus
	openErr   error
	calErr    error
	sample    bmetemp.SensorSample
	port      int
	address   uint16
	readCount int
}

func (fd *fakeDriver) OpenBus(port int) (bmetemp.BusHandle, error) {
	fd.port = port
	if fd.openErr != nil {
		return nil, fd.openErr
	}
	fd.bus = &fakeBus{}
	return fd.bus, nil
}

func (fd *fakeDriver) LoadCalibration(bus bmetemp.BusHandle, addr uint16) (bmetemp.CalibrationParameters, error) {
	fd.address = addr
	if fd.calErr != nil {
		return nil, fd.calErr
	}
	return fakeCalibration(addr), nil
}

func (fd *fakeDriver) Sample(bus bmetemp.BusHandle, addr uint16, cal bmetemp.CalibrationParameters) (*bmetemp.SensorSample, error) {
	fd.readCount++
	sample := fd.sample
	return &sample, nil
}

func factory(driver *fakeDriver) driverFactory {
	return func(bmetemp.SensorConfig) (bmetemp.SensorDriver, error) {
		return driver, nil
	}
}

func TestRun_PrintsCentidegrees(t *testing.T) {
	data := []struct {
		temperature float64
		expected    string
	}{
		{23.45, "2345\n"},
		{-3.25, "-325\n"},
		{19.375, "1937.5\n"},
		{21.5, "2150\n"},
	}

	for _, d := range data {
		driver := &fakeDriver{sample: bmetemp.SensorSample{Temperature: d.temperature}}
		var stdout bytes.Buffer

		code := run(nil, &stdout, factory(driver))

		assert.Equal(t, 0, code)
		assert.Equal(t, d.expected, stdout.String())
		assert.Equal(t, 1, driver.readCount)
		assert.Equal(t, 1, driver.bus.closed)
		assert.Equal(t, 1, driver.port)
		assert.Equal(t, uint16(0x76), driver.address)
	}
}

func TestRun_DeviceAbsent(t *testing.T) {
	driver := &fakeDriver{openErr: &bmetemp.DeviceError{Op: "open bus", Port: 1, Err: os.ErrNotExist}}
	var stdout bytes.Buffer

	code := run(nil, &stdout, factory(driver))

	assert.NotEqual(t, 0, code)
	assert.Empty(t, stdout.String())
}

func TestRun_CalibrationFails(t *testing.T) {
	driver := &fakeDriver{calErr: errors.New("checksum mismatch")}
	var stdout bytes.Buffer

	code := run(nil, &stdout, factory(driver))

	assert.NotEqual(t, 0, code)
	assert.Empty(t, stdout.String())
	assert.Equal(t, 0, driver.readCount)
	assert.Equal(t, 1, driver.bus.closed)
}

func TestRun_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sensor": {"port": 3, "address": 119}}`), 0o600))
	driver := &fakeDriver{sample: bmetemp.SensorSample{Temperature: 21.5}}
	var stdout bytes.Buffer

	code := run([]string{"-config", path}, &stdout, factory(driver))

	assert.Equal(t, 0, code)
	assert.Equal(t, "2150\n", stdout.String())
	assert.Equal(t, 3, driver.port)
	assert.Equal(t, uint16(0x77), driver.address)
}

func TestRun_InvalidConfig(t *testing.T) {
	driver := &fakeDriver{}
	var stdout bytes.Buffer

	code := run([]string{"-config", filepath.Join(t.TempDir(), "missing.json")}, &stdout, factory(driver))

	assert.NotEqual(t, 0, code)
	assert.Empty(t, stdout.String())
	assert.Nil(t, driver.bus)
}

func TestRun_UnknownFlag(t *testing.T) {
	var stdout bytes.Buffer

	code := run([]string{"-port", "2"}, &stdout, factory(&fakeDriver{}))

	assert.NotEqual(t, 0, code)
	assert.Empty(t, stdout.String())
}

func TestRun_RecordsSample(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "samples.db")
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": {"path": "`+dbPath+`"}}`), 0o600))
	driver := &fakeDriver{sample: bmetemp.SensorSample{Temperature: 21.5, Pressure: 1004.02, Humidity: 70.25}}
	var stdout bytes.Buffer

	code := run([]string{"-config", path}, &stdout, factory(driver))

	assert.Equal(t, 0, code)
	assert.Equal(t, "2150\n", stdout.String())

	store, closeDB, err := bmetemp.OpenSqliteDataStore(dbPath)
	require.NoError(t, err)
	defer closeDB()
	rows, err := store.ReadUnpublished()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Port)
	assert.Equal(t, uint16(0x76), rows[0].Address)
	assert.Equal(t, driver.sample, rows[0].Sample)
}

func TestRun_RecordFailsStillPrints(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "missing", "samples.db")
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": {"path": "`+dbPath+`"}}`), 0o600))
	driver := &fakeDriver{sample: bmetemp.SensorSample{Temperature: 23.45}}
	var stdout bytes.Buffer

	code := run([]string{"-config", path}, &stdout, factory(driver))

	assert.Equal(t, 0, code)
	assert.Equal(t, "2345\n", stdout.String())
}

func TestRun_BrokerUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"publisher": {"mqtt": {"server": "tcp://127.0.0.1:1"}}}`), 0o600))
	driver := &fakeDriver{sample: bmetemp.SensorSample{Temperature: 23.45}}
	var stdout bytes.Buffer

	code := run([]string{"-config", path}, &stdout, factory(driver))

	assert.Equal(t, 0, code)
	assert.Equal(t, "2345\n", stdout.String())
	assert.Equal(t, 1, driver.readCount)
}
