package sensor

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

// DefaultBME280Address is the usual I2C address of a BME280 breakout.
const DefaultBME280Address = 0x76

// BME280 samples a Bosch BME280 over I2C.
type BME280 struct {
	bus i2c.BusCloser
	dev *bmxx80.Dev
}

// NewBME280 opens the named I2C bus ("" for the default) and the sensor at addr.
func NewBME280(busName string, addr uint16) (*BME280, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	dev, err := bmxx80.NewI2C(bus, addr, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open bme280 at 0x%02x: %w", addr, err)
	}

	return &BME280{bus: bus, dev: dev}, nil
}

// Sample reads one measurement.
func (b *BME280) Sample() (Climate, error) {
	var env physic.Env
	if err := b.dev.Sense(&env); err != nil {
		return Climate{}, fmt.Errorf("bme280 sense: %w", err)
	}
	return Climate{
		TemperatureC: env.Temperature.Celsius(),
		HumidityPct:  float64(env.Humidity) / float64(physic.PercentRH),
		PressureHPa:  float64(env.Pressure) / float64(100*physic.Pascal),
	}, nil
}

// Close halts the sensor and releases the bus.
func (b *BME280) Close() error {
	var errs []error
	if err := b.dev.Halt(); err != nil {
		errs = append(errs, fmt.Errorf("halt bme280: %w", err))
	}
	if err := b.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close i2c bus: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
