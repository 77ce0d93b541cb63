// Package hdlc implements the IEC 62056-46 HDLC data link layer used to carry
// DLMS/COSEM APDUs over a serial line: frame encoding and decoding, frame
// boundary detection, addressing and I-frame sequence numbering.
package hdlc

import (
	"errors"

	"github.com/sirupsen/logrus"
)

const (
	Flag       byte = 0x7E
	FormatType byte = 0xA0 // frame format type 3

	MaxInfoLen  = 256
	MaxFrameLen = 300

	// flag + format(2) + dst + src + control + HCS(2) + flag
	minFrameLen = 9
	headerLen   = 5 // format(2) + dst + src + control
	crcLen      = 2

	segmentedBit byte = 0x08
	lengthMaskHi byte = 0x07
)

// Unnumbered control bytes.
const (
	ControlSNRM byte = 0x93
	ControlUA   byte = 0x73
	ControlDISC byte = 0x53
	ControlDM   byte = 0x1F
)

var (
	ErrMalformed        = errors.New("hdlc: malformed frame")
	ErrChecksumMismatch = errors.New("hdlc: checksum mismatch")
	ErrIncomplete       = errors.New("hdlc: incomplete frame")
	ErrCorrupt          = errors.New("hdlc: corrupt frame span")
	ErrInfoTooLarge     = errors.New("hdlc: information field too large")
	ErrNotSupported     = errors.New("hdlc: not supported")
)

var _lg = logrus.WithField("module", "hdlc")

// Frame is a decoded HDLC frame. Info is nil for frames without an
// information field.
type Frame struct {
	Dest      byte
	Src       byte
	Control   byte
	Info      []byte
	Segmented bool
}

// Params are the optional SNRM negotiation parameters.
type Params struct {
	MaxInfoTx uint16
	MaxInfoRx uint16
	WindowTx  uint8
	WindowRx  uint8
}
