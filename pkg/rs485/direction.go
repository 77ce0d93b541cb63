package rs485

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// DirectionControl switches an RS485 transceiver between driving the bus and
// listening to it.
type DirectionControl interface {
	SetTransmit(on bool) error
}

// NoDirection is used with adapters that switch direction automatically or
// when the kernel driver toggles RTS.
type NoDirection struct{}

func (NoDirection) SetTransmit(bool) error { return nil }

const sysfsGPIO = "/sys/class/gpio"

// GPIODirection drives the DE/RE pin through the sysfs GPIO interface.
type GPIODirection struct {
	pin   int
	value *os.File
}

// NewGPIODirection exports pin if necessary, configures it as an output and
// leaves it low (receive).
func NewGPIODirection(pin int) (*GPIODirection, error) {
	return newGPIODirection(sysfsGPIO, pin)
}

func newGPIODirection(root string, pin int) (*GPIODirection, error) {
	dir := filepath.Join(root, "gpio"+strconv.Itoa(pin))

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.WriteFile(filepath.Join(root, "export"), []byte(strconv.Itoa(pin)), 0o644); err != nil {
			return nil, fmt.Errorf("export gpio %d: %w", pin, err)
		}
		// udev needs a moment to fix permissions on the new node
		time.Sleep(50 * time.Millisecond)
	}

	if err := os.WriteFile(filepath.Join(dir, "direction"), []byte("low"), 0o644); err != nil {
		return nil, fmt.Errorf("configure gpio %d: %w", pin, err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "value"), os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open gpio %d value: %w", pin, err)
	}

	_lg.Infof("RS485 direction control on GPIO %d", pin)
	return &GPIODirection{pin: pin, value: f}, nil
}

func (g *GPIODirection) SetTransmit(on bool) error {
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	if _, err := g.value.WriteAt(v, 0); err != nil {
		return fmt.Errorf("set gpio %d: %w", g.pin, err)
	}
	return nil
}

func (g *GPIODirection) Close() error {
	return g.value.Close()
}
