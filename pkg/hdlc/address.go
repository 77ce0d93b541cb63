package hdlc

import "fmt"

// ClientAddress encodes a client logical address as a one byte HDLC address.
func ClientAddress(logical uint8) byte {
	return logical<<1 | 1
}

// ServerAddress combines the server logical and physical addresses as
// (logical << 7) | physical and encodes the result as a one byte HDLC
// address. Combined addresses that need the two byte form are rejected with
// ErrNotSupported since frames are only encoded with one byte addresses.
func ServerAddress(logical, physical uint16) (byte, error) {
	combined := logical<<7 | physical
	if combined >= 0x80 {
		return 0, fmt.Errorf("%w: server address 0x%04X needs 2-byte encoding (logical=%d physical=%d)",
			ErrNotSupported, combined, logical, physical)
	}
	return byte(combined<<1 | 1), nil
}
