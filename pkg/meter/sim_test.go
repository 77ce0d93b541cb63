package meter

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/cosem"
	"github.com/NotCoffee418/dlms_power_meter/pkg/hdlc"
)

var errSimTimeout = errors.New("sim: no response")

// simGarble damages a reply on the wire.
type simGarble int

const (
	garbleNone      simGarble = iota
	garbleFCS                 // flip the frame checksum
	garbleCloseFlag           // cut the closing flag
)

type simRegister struct {
	value    []byte // encoded data, tag first
	scaler   int8
	unit     byte
	denied   bool
	noScaler bool

	// garble damages value replies, or scaler replies with garbleScaler
	garble       simGarble
	garbleScaler bool
}

type simGet struct {
	obis cosem.ObisCode
	attr int8
}

// simMeter answers HDLC frames the way a DLMS meter would. It implements
// Transport and is driven synchronously by the session under test.
type simMeter struct {
	t *testing.T

	client, server byte
	password       string
	registers      map[cosem.ObisCode]simRegister

	silent       bool // never answer
	refuseSNRM   bool // answer SNRM with DM
	wrongInvoke  bool // echo a different invoke id
	sendSeq      uint8
	recvSeq      uint8
	seqViolation []string

	pending  []byte
	damage   simGarble
	gets     []simGet
	snrms    int
	discs    int
	releases int
	flushes  int
}

func newSimMeter(t *testing.T) *simMeter {
	return &simMeter{
		t:         t,
		client:    0x03,
		server:    0x03,
		password:  "22222222",
		registers: make(map[cosem.ObisCode]simRegister),
	}
}

func (m *simMeter) Flush() {
	m.flushes++
	m.pending = nil
}

func (m *simMeter) Receive(buf []byte, timeout time.Duration) (int, error) {
	if m.pending == nil {
		return 0, errSimTimeout
	}
	n := copy(buf, m.pending)
	m.pending = nil
	return n, nil
}

func (m *simMeter) Send(data []byte) (int, error) {
	m.t.Helper()

	start, length, err := hdlc.FindFrame(data)
	if err != nil {
		m.t.Fatalf("sim: client sent unframed data [% X]: %v", data, err)
	}
	f, err := hdlc.Decode(data[start : start+length])
	if err != nil {
		m.t.Fatalf("sim: client sent bad frame [% X]: %v", data, err)
	}
	if f.Dest != m.server || f.Src != m.client {
		m.t.Fatalf("sim: frame addressed %02X->%02X, want %02X->%02X", f.Src, f.Dest, m.client, m.server)
	}

	if m.silent {
		return len(data), nil
	}

	switch {
	case f.Control == hdlc.ControlSNRM:
		m.snrms++
		m.sendSeq, m.recvSeq = 0, 0
		if m.refuseSNRM {
			m.reply(hdlc.ControlDM, nil)
		} else {
			m.reply(hdlc.ControlUA, nil)
		}

	case f.Control == hdlc.ControlDISC:
		m.discs++
		m.reply(hdlc.ControlUA, nil)

	case hdlc.IsIFrame(f.Control):
		if got := hdlc.SendSeqOf(f.Control); got != m.recvSeq {
			m.seqViolation = append(m.seqViolation, "N(S)")
		}
		if got := hdlc.RecvSeqOf(f.Control); got != m.sendSeq {
			m.seqViolation = append(m.seqViolation, "N(R)")
		}
		m.recvSeq = (hdlc.SendSeqOf(f.Control) + 1) & 0x07

		if !bytes.HasPrefix(f.Info, hdlc.LLCSendHeader) {
			m.t.Fatalf("sim: I-frame without LLC header [% X]", f.Info)
		}
		m.handleAPDU(f.Info[3:])

	default:
		m.t.Fatalf("sim: unexpected control 0x%02X", f.Control)
	}
	return len(data), nil
}

func (m *simMeter) handleAPDU(apdu []byte) {
	switch apdu[0] {
	case cosem.TagAARQ:
		result, diag := byte(0), byte(0)
		if !bytes.Contains(apdu, append([]byte{0x80, byte(len(m.password))}, m.password...)) {
			result, diag = 1, 13
		}
		m.replyAPDU([]byte{
			0x61, 0x29, 0xA1, 0x09, 0x06, 0x07, 0x60, 0x85, 0x74, 0x05, 0x08, 0x01, 0x01,
			0xA2, 0x03, 0x02, 0x01, result,
			0xA3, 0x05, 0xA1, 0x03, 0x02, 0x01, diag,
			0xBE, 0x10, 0x04, 0x0E, 0x08, 0x00, 0x06, 0x5F, 0x1F, 0x04, 0x00, 0x00, 0x18, 0x1D, 0x00, 0x80, 0x00, 0x07,
		})

	case cosem.TagRLRQ:
		m.releases++
		m.replyAPDU([]byte{0x63, 0x00})

	case cosem.TagGetRequest:
		invoke := apdu[2]
		if m.wrongInvoke {
			invoke++
		}
		var obis cosem.ObisCode
		copy(obis[:], apdu[5:11])
		attr := int8(apdu[11])
		m.gets = append(m.gets, simGet{obis: obis, attr: attr})

		reg, ok := m.registers[obis]
		if ok && reg.garbleScaler == (attr == cosem.AttrScalerUnit) {
			m.damage = reg.garble
		}
		denied := []byte{0xC4, 0x01, invoke, 0x01, 0x04}
		switch {
		case !ok || reg.denied:
			m.replyAPDU(denied)
		case attr == cosem.AttrScalerUnit && reg.noScaler:
			m.replyAPDU(denied)
		case attr == cosem.AttrScalerUnit:
			m.replyAPDU([]byte{0xC4, 0x01, invoke, 0x00, 0x02, 0x02, 0x0F, byte(reg.scaler), 0x16, reg.unit})
		default:
			m.replyAPDU(append([]byte{0xC4, 0x01, invoke, 0x00}, reg.value...))
		}

	default:
		m.t.Fatalf("sim: unexpected APDU [% X]", apdu)
	}
}

func (m *simMeter) replyAPDU(apdu []byte) {
	control := hdlc.IFrameControl(m.sendSeq, m.recvSeq, true)
	m.sendSeq = (m.sendSeq + 1) & 0x07
	m.reply(control, append(append([]byte(nil), hdlc.LLCRecvHeader...), apdu...))
}

func (m *simMeter) reply(control byte, info []byte) {
	raw, err := hdlc.Encode(hdlc.Frame{Dest: m.client, Src: m.server, Control: control, Info: info})
	if err != nil {
		m.t.Fatalf("sim: encode reply: %v", err)
	}
	switch m.damage {
	case garbleFCS:
		raw[len(raw)-2] ^= 0xFF
	case garbleCloseFlag:
		raw = raw[:len(raw)-1]
	}
	m.damage = garbleNone

	// leading idle flag like many meters send
	m.pending = append([]byte{hdlc.Flag}, raw...)
}

// getsFor filters the recorded GET requests by attribute.
func (m *simMeter) getsFor(attr int8) []cosem.ObisCode {
	var out []cosem.ObisCode
	for _, g := range m.gets {
		if g.attr == attr {
			out = append(out, g.obis)
		}
	}
	return out
}

func uint16Data(v uint16) []byte {
	return []byte{0x12, byte(v >> 8), byte(v)}
}
