// Package meter drives a DLMS/COSEM session with a single meter over HDLC:
// connect, read every configured register and release the link again.
package meter

import (
	"errors"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/cosem"
	"github.com/NotCoffee418/dlms_power_meter/pkg/hdlc"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotAssociated     = errors.New("meter: not associated")
	ErrUnexpectedControl = errors.New("meter: unexpected control field")
	ErrShortResponse     = errors.New("meter: response too short")
	ErrNoReadings        = errors.New("meter: no register could be read")
)

var _lg = logrus.WithField("module", "meter")

// Transport is the half-duplex byte link to the meter.
type Transport interface {
	Send(data []byte) (int, error)
	// Receive blocks until data arrives or timeout passes.
	Receive(buf []byte, timeout time.Duration) (int, error)
	// Flush discards pending received bytes.
	Flush()
}

type State int

const (
	StateDisconnected State = iota
	StateHdlcConnected
	StateAssociated
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateHdlcConnected:
		return "hdlc_connected"
	case StateAssociated:
		return "associated"
	case StateError:
		return "error"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config holds the link and association parameters.
type Config struct {
	ClientAddress  uint8
	ServerLogical  uint16
	ServerPhysical uint16
	// Password for low level security. Empty disables authentication.
	Password   string
	MaxPDUSize uint16

	ResponseTimeout time.Duration
	// InterFrameDelay is waited between sending a frame and reading the answer.
	InterFrameDelay time.Duration
	// InterRequestDelay is waited between consecutive register reads.
	InterRequestDelay time.Duration
	// SettleDelay is waited between UA and the association request.
	SettleDelay time.Duration

	// SNRMParams are sent with SNRM when set. Most meters answer a bare SNRM.
	SNRMParams *hdlc.Params
}

// DefaultConfig returns the settings that work with Microstar meters.
func DefaultConfig() Config {
	return Config{
		ClientAddress:     1,
		ServerLogical:     0,
		ServerPhysical:    1,
		Password:          "22222222",
		MaxPDUSize:        cosem.DefaultMaxPDUSize,
		ResponseTimeout:   5 * time.Second,
		InterFrameDelay:   30 * time.Millisecond,
		InterRequestDelay: 20 * time.Millisecond,
		SettleDelay:       100 * time.Millisecond,
	}
}
