package hdlc

import "bytes"

// LLC sub-headers that must precede every COSEM APDU inside an I-frame.
var (
	LLCSendHeader = []byte{0xE6, 0xE6, 0x00}
	LLCRecvHeader = []byte{0xE6, 0xE7, 0x00}
)

const llcLen = 3

// WrapLLC prefixes pdu with the client to server LLC header.
func WrapLLC(pdu []byte) []byte {
	out := make([]byte, 0, llcLen+len(pdu))
	out = append(out, LLCSendHeader...)
	return append(out, pdu...)
}

// StripLLC removes a leading LLC header (either direction) from info.
// Information fields without one are returned as is.
func StripLLC(info []byte) []byte {
	if len(info) < llcLen || info[0] != 0xE6 {
		return info
	}
	if bytes.HasPrefix(info, LLCRecvHeader[:2]) || bytes.HasPrefix(info, LLCSendHeader[:2]) {
		return info[llcLen:]
	}
	return info
}
