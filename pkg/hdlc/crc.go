package hdlc

import "github.com/sigurn/crc16"

// CRC-16/X-25: reflected polynomial 0x8408, seed 0xFFFF, complemented output.
// This is the HCS/FCS algorithm mandated by IEC 62056-46.
var crcTable = crc16.MakeTable(crc16.CRC16_X_25)

// Checksum returns the HDLC frame check sequence over data.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// appendChecksum appends the checksum of data least significant byte first.
func appendChecksum(buf []byte, data []byte) []byte {
	crc := Checksum(data)
	return append(buf, byte(crc), byte(crc>>8))
}

func readChecksum(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
