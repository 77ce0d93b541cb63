// Package rs485 drives a half-duplex RS485 link: a serial port plus a
// direction control line that must be held in transmit mode until every
// byte has physically left the UART.
package rs485

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultBaudRate = 9600

	// RxBufferSize is the capacity of the receive ring buffer. Bytes that
	// arrive while it is full are dropped.
	RxBufferSize = 512

	// start + 8 data + stop
	bitsPerByte = 10

	turnaroundDelay = 100 * time.Microsecond
	drainMargin     = 2 * time.Millisecond
	framePollEvery  = 10 * time.Millisecond
	frameMaxWait    = 150 * time.Millisecond
	readChunkSize   = 256
)

var (
	ErrTimeout   = errors.New("rs485: receive timeout")
	ErrClosed    = errors.New("rs485: port closed")
	ErrEmptySend = errors.New("rs485: nothing to send")
)

var _lg = logrus.WithField("module", "rs485")

// Options configure a Port.
type Options struct {
	// PortName is the serial device, e.g. /dev/ttyUSB0.
	PortName string
	BaudRate uint
	// Direction toggles the transceiver DE/RE line. Nil means the adapter
	// switches direction on its own.
	Direction DirectionControl
	// KernelRS485 lets the kernel driver toggle RTS around each write
	// instead of Direction.
	KernelRS485 bool
}

func (o Options) baudRate() uint {
	if o.BaudRate == 0 {
		return DefaultBaudRate
	}
	return o.BaudRate
}
