package hdlc

import (
	"bytes"
	"fmt"
)

// Encode serialises f into a complete flag delimited frame:
//
//	7E | format(2) | dst | src | control | HCS(2) | [info | FCS(2)] | 7E
//
// The format field carries the frame length (flags excluded) in its low 11
// bits and the segmentation flag in bit 3 of the high byte. The HCS covers
// format through control; the FCS covers format through the end of info.
func Encode(f Frame) ([]byte, error) {
	if len(f.Info) > MaxInfoLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrInfoTooLarge, len(f.Info))
	}

	frameLen := headerLen + crcLen
	if len(f.Info) > 0 {
		frameLen += len(f.Info) + crcLen
	}

	format := FormatType | byte(uint16(frameLen)>>8)&lengthMaskHi
	if f.Segmented {
		format |= segmentedBit
	}

	buf := make([]byte, 0, frameLen+2)
	buf = append(buf, Flag, format, byte(frameLen), f.Dest, f.Src, f.Control)
	buf = appendChecksum(buf, buf[1:1+headerLen])

	if len(f.Info) > 0 {
		buf = append(buf, f.Info...)
		buf = appendChecksum(buf, buf[1:])
	}

	return append(buf, Flag), nil
}

// Decode parses a single frame including both flags. A declared length that
// disagrees with the actual length is tolerated; meters are not always exact.
func Decode(raw []byte) (*Frame, error) {
	if len(raw) < minFrameLen {
		return nil, fmt.Errorf("%w: %d bytes is shorter than a frame header", ErrMalformed, len(raw))
	}
	if raw[0] != Flag || raw[len(raw)-1] != Flag {
		return nil, fmt.Errorf("%w: missing frame flags", ErrMalformed)
	}
	if raw[1]&0xF0 != FormatType {
		return nil, fmt.Errorf("%w: invalid format type 0x%02X", ErrMalformed, raw[1])
	}

	f := &Frame{
		Segmented: raw[1]&segmentedBit != 0,
		Dest:      raw[3],
		Src:       raw[4],
		Control:   raw[5],
	}

	declared := uint16(raw[1]&lengthMaskHi)<<8 | uint16(raw[2])
	if int(declared)+2 != len(raw) {
		_lg.Debugf("length mismatch: format says %d, got %d", declared, len(raw)-2)
	}

	hcs := Checksum(raw[1 : 1+headerLen])
	if got := readChecksum(raw[6:8]); got != hcs {
		return nil, fmt.Errorf("%w: HCS calc=0x%04X recv=0x%04X", ErrChecksumMismatch, hcs, got)
	}

	if len(raw) > minFrameLen {
		infoLen := len(raw) - minFrameLen - crcLen
		if infoLen < 0 {
			return nil, fmt.Errorf("%w: %d trailing bytes cannot hold an FCS", ErrMalformed, len(raw)-minFrameLen)
		}
		if infoLen > MaxInfoLen {
			return nil, fmt.Errorf("%w: %d bytes", ErrInfoTooLarge, infoLen)
		}

		fcs := Checksum(raw[1 : len(raw)-3])
		if got := readChecksum(raw[len(raw)-3 : len(raw)-1]); got != fcs {
			return nil, fmt.Errorf("%w: FCS calc=0x%04X recv=0x%04X", ErrChecksumMismatch, fcs, got)
		}

		if infoLen > 0 {
			f.Info = make([]byte, infoLen)
			copy(f.Info, raw[8:8+infoLen])
		}
	}

	return f, nil
}

// FindFrame locates the first frame in data and returns its offset and
// length (both flags included). Frames are not byte stuffed, so the end is
// taken from the length in the format field; 0x7E inside the information
// field or the FCS does not end the frame. Spans whose declared length does
// not land on a closing flag fall back to scanning for the next flag.
// Runs of consecutive flags are treated as idle fill, and spans too short to
// be a frame are skipped. It returns ErrIncomplete while the frame has not
// fully arrived and ErrCorrupt when the buffer ends after a span that is too
// short to be a frame.
func FindFrame(data []byte) (int, int, error) {
	start := bytes.IndexByte(data, Flag)
	if start < 0 {
		return 0, 0, ErrIncomplete
	}

	skippedShort := false
	for {
		for start+1 < len(data) && data[start+1] == Flag {
			start++
		}

		if n, ok := declaredSpan(data[start:]); ok {
			if start+n > len(data) {
				return 0, 0, ErrIncomplete
			}
			if data[start+n-1] == Flag {
				return start, n, nil
			}
			_lg.Debugf("declared length %d at offset %d does not end on a flag", n-2, start)
		}

		rel := bytes.IndexByte(data[start+1:], Flag)
		if rel < 0 {
			if skippedShort && start == len(data)-1 {
				return 0, 0, ErrCorrupt
			}
			return 0, 0, ErrIncomplete
		}

		end := start + 1 + rel
		if end-start+1 < minFrameLen {
			_lg.Debugf("skipping %d byte span at offset %d", end-start+1, start)
			skippedShort = true
			start = end
			continue
		}

		return start, end - start + 1, nil
	}
}

// declaredSpan returns the number of bytes, both flags included, that the
// format field of the frame opening at b[0] announces.
func declaredSpan(b []byte) (int, bool) {
	if len(b) < 3 || b[1]&0xF0 != FormatType {
		return 0, false
	}
	n := int(b[1]&lengthMaskHi)<<8 | int(b[2])
	if n < minFrameLen-2 {
		return 0, false
	}
	return n + 2, true
}

// SNRM builds a Set Normal Response Mode frame. A nil params sends the
// minimal frame without a negotiation information field.
func SNRM(client, server byte, params *Params) ([]byte, error) {
	f := Frame{Dest: server, Src: client, Control: ControlSNRM}
	if params != nil {
		f.Info = snrmInfo(params)
	}
	return Encode(f)
}

// DISC builds a Disconnect frame.
func DISC(client, server byte) ([]byte, error) {
	return Encode(Frame{Dest: server, Src: client, Control: ControlDISC})
}

// IFrame builds a numbered information frame carrying info.
func IFrame(client, server, control byte, info []byte) ([]byte, error) {
	if len(info) == 0 {
		return nil, fmt.Errorf("%w: empty information field", ErrMalformed)
	}
	return Encode(Frame{Dest: server, Src: client, Control: control, Info: info})
}

// snrmInfo encodes the negotiation parameters as
//
//	81 80 <len> 05 <n> <max tx> 06 <n> <max rx> 07 01 <win tx> 08 01 <win rx>
func snrmInfo(p *Params) []byte {
	params := make([]byte, 0, 16)
	params = appendParam(params, 0x05, p.MaxInfoTx)
	params = appendParam(params, 0x06, p.MaxInfoRx)
	params = append(params, 0x07, 0x01, p.WindowTx)
	params = append(params, 0x08, 0x01, p.WindowRx)

	info := []byte{0x81, 0x80, byte(len(params))}
	return append(info, params...)
}

func appendParam(buf []byte, id byte, v uint16) []byte {
	if v <= 0xFF {
		return append(buf, id, 0x01, byte(v))
	}
	return append(buf, id, 0x02, byte(v>>8), byte(v))
}
