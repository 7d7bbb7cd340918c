package bme280

import (
	"encoding/binary"
	"fmt"
)

// Calibration holds the factory trimming parameters of one sensor.
type Calibration struct {
	T1 uint16
	T2 int16
	T3 int16

	P1 uint16
	P2 int16
	P3 int16
	P4 int16
	P5 int16
	P6 int16
	P7 int16
	P8 int16
	P9 int16

	H1 uint8
	H2 int16
	H3 uint8
	H4 int16
	H5 int16
	H6 int8

	addr uint16
}

// Address returns the I²C address the calibration was read from.
func (c *Calibration) Address() uint16 {
	return c.addr
}

// Raw is the uncompensated ADC output of one measurement. Skipped channels
// are flagged explicitly since their register reset values are valid readings.
type Raw struct {
	Temperature int32
	Pressure    int32
	Humidity    int32

	SkipPressure bool
	SkipHumidity bool
}

// Measurement is a compensated sample.
type Measurement struct {
	Temperature float64 // °C
	Pressure    float64 // Pa, 0 when skipped
	Humidity    float64 // %RH, 0 when skipped
}

// parseCalibration decodes the 0x88..0xA1 block and the 0xE1..0xE7 block.
func parseCalibration(tp, h []byte) (*Calibration, error) {
	if len(tp) != 26 || len(h) != 7 {
		return nil, fmt.Errorf("%w: short read", ErrInvalidCalibration)
	}
	if blank(tp) || blank(h) {
		return nil, fmt.Errorf("%w: blank nvm", ErrInvalidCalibration)
	}
	le := binary.LittleEndian
	c := &Calibration{
		T1: le.Uint16(tp[0:]),
		T2: int16(le.Uint16(tp[2:])),
		T3: int16(le.Uint16(tp[4:])),
		P1: le.Uint16(tp[6:]),
		P2: int16(le.Uint16(tp[8:])),
		P3: int16(le.Uint16(tp[10:])),
		P4: int16(le.Uint16(tp[12:])),
		P5: int16(le.Uint16(tp[14:])),
		P6: int16(le.Uint16(tp[16:])),
		P7: int16(le.Uint16(tp[18:])),
		P8: int16(le.Uint16(tp[20:])),
		P9: int16(le.Uint16(tp[22:])),
		// tp[24] is reserved.
		H1: tp[25],
		H2: int16(le.Uint16(h[0:])),
		H3: h[2],
		H4: int16(int8(h[3]))<<4 | int16(h[4]&0x0F),
		H5: int16(int8(h[5]))<<4 | int16(h[4]>>4),
		H6: int8(h[6]),
	}
	// Both are divisors in the compensation formulas.
	if c.T1 == 0 || c.P1 == 0 {
		return nil, fmt.Errorf("%w: dig_T1=%d dig_P1=%d", ErrInvalidCalibration, c.T1, c.P1)
	}
	return c, nil
}

func blank(b []byte) bool {
	for _, v := range b[1:] {
		if v != b[0] {
			return false
		}
	}
	return b[0] == 0x00 || b[0] == 0xFF
}

// Compensate converts raw ADC values using the double precision formulas
// from datasheet section 8.1.
func (c *Calibration) Compensate(r Raw) Measurement {
	tFine := c.tFine(r.Temperature)
	m := Measurement{Temperature: tFine / 5120.0}
	if !r.SkipPressure {
		m.Pressure = c.pressure(r.Pressure, tFine)
	}
	if !r.SkipHumidity {
		m.Humidity = c.humidity(r.Humidity, tFine)
	}
	return m
}

func (c *Calibration) tFine(adc int32) float64 {
	var1 := (float64(adc)/16384.0 - float64(c.T1)/1024.0) * float64(c.T2)
	x := float64(adc)/131072.0 - float64(c.T1)/8192.0
	var2 := x * x * float64(c.T3)
	return var1 + var2
}

func (c *Calibration) pressure(adc int32, tFine float64) float64 {
	var1 := tFine/2.0 - 64000.0
	var2 := var1 * var1 * float64(c.P6) / 32768.0
	var2 = var2 + var1*float64(c.P5)*2.0
	var2 = var2/4.0 + float64(c.P4)*65536.0
	var1 = (float64(c.P3)*var1*var1/524288.0 + float64(c.P2)*var1) / 524288.0
	var1 = (1.0 + var1/32768.0) * float64(c.P1)
	if var1 == 0 {
		return 0
	}
	p := 1048576.0 - float64(adc)
	p = (p - var2/4096.0) * 6250.0 / var1
	var1 = float64(c.P9) * p * p / 2147483648.0
	var2 = p * float64(c.P8) / 32768.0
	return p + (var1+var2+float64(c.P7))/16.0
}

func (c *Calibration) humidity(adc int32, tFine float64) float64 {
	h := tFine - 76800.0
	h = (float64(adc) - (float64(c.H4)*64.0 + float64(c.H5)/16384.0*h)) *
		(float64(c.H2) / 65536.0 * (1.0 + float64(c.H6)/67108864.0*h*(1.0+float64(c.H3)/67108864.0*h)))
	h = h * (1.0 - float64(c.H1)*h/524288.0)
	if h > 100.0 {
		return 100.0
	}
	if h < 0.0 {
		return 0.0
	}
	return h
}
