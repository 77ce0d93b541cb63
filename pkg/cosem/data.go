package cosem

import (
	"encoding/binary"
	"fmt"
	"math"
)

// fixedSizes holds the payload length of every fixed width type.
var fixedSizes = map[DataType]int{
	TypeNull:    0,
	TypeBoolean: 1,
	TypeUint8:   1,
	TypeEnum:    1,
	TypeInt8:    1,
	TypeUint16:  2,
	TypeInt16:   2,
	TypeUint32:  4,
	TypeInt32:   4,
	TypeFloat32: 4,
	TypeUint64:  8,
	TypeInt64:   8,
	TypeFloat64: 8,
}

// DecodeData decodes one A-XDR value starting at its type tag and returns it
// along with the number of bytes consumed. Structures and arrays only yield
// their element count; the elements follow in the remaining bytes. Strings
// longer than MaxStringLen are cut and flagged as Truncated.
func DecodeData(b []byte) (Value, int, error) {
	if len(b) < 1 {
		return Value{}, 0, fmt.Errorf("%w: missing type tag", ErrShortData)
	}

	v := Value{Type: DataType(b[0])}
	p := b[1:]

	if size, ok := fixedSizes[v.Type]; ok {
		if len(p) < size {
			return v, 0, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrShortData, v.Type, size, len(p))
		}
		decodeFixed(&v, p[:size])
		return v, 1 + size, nil
	}

	switch v.Type {
	case TypeOctetString, TypeVisibleString:
		if len(p) < 1 {
			return v, 0, fmt.Errorf("%w: %s length missing", ErrShortData, v.Type)
		}
		n := int(p[0])
		if len(p) < 1+n {
			return v, 0, fmt.Errorf("%w: %s of %d bytes, have %d", ErrShortData, v.Type, n, len(p)-1)
		}
		keep := n
		if keep > MaxStringLen {
			keep = MaxStringLen
			v.Truncated = true
			_lg.Warnf("%s of %d bytes truncated to %d", v.Type, n, MaxStringLen)
		}
		v.Bytes = make([]byte, keep)
		copy(v.Bytes, p[1:1+keep])
		return v, 2 + n, nil

	case TypeStructure, TypeArray:
		if len(p) < 1 {
			return v, 0, fmt.Errorf("%w: %s element count missing", ErrShortData, v.Type)
		}
		v.Count = int(p[0])
		return v, 2, nil
	}

	return v, 0, fmt.Errorf("%w: tag 0x%02X", ErrUnsupportedType, b[0])
}

func decodeFixed(v *Value, p []byte) {
	switch v.Type {
	case TypeBoolean, TypeUint8, TypeEnum:
		v.Uint = uint64(p[0])
	case TypeInt8:
		v.Int = int64(int8(p[0]))
	case TypeUint16:
		v.Uint = uint64(binary.BigEndian.Uint16(p))
	case TypeInt16:
		v.Int = int64(int16(binary.BigEndian.Uint16(p)))
	case TypeUint32:
		v.Uint = uint64(binary.BigEndian.Uint32(p))
	case TypeInt32:
		v.Int = int64(int32(binary.BigEndian.Uint32(p)))
	case TypeUint64:
		v.Uint = binary.BigEndian.Uint64(p)
	case TypeInt64:
		v.Int = int64(binary.BigEndian.Uint64(p))
	case TypeFloat32:
		v.Float = float64(math.Float32frombits(binary.BigEndian.Uint32(p)))
	case TypeFloat64:
		v.Float = math.Float64frombits(binary.BigEndian.Uint64(p))
	}
}

// ScalerUnit is attribute 3 of a register: value × 10^Scaler in Unit.
type ScalerUnit struct {
	Scaler int8
	Unit   uint8
}

// Multiplier returns 10^Scaler.
func (s ScalerUnit) Multiplier() float64 {
	return math.Pow10(int(s.Scaler))
}

// ParseScalerUnit extracts the scaler and unit from a GET.response carrying
// structure{integer scaler, enum unit}. Only that exact shape is accepted;
// anything else reports ok=false so the caller can fall back to no scaling.
// The unit is left at 0 when the second element is not an enum.
func ParseScalerUnit(pdu []byte) (su ScalerUnit, ok bool) {
	if len(pdu) < 4 || pdu[0] != TagGetResponse || pdu[1] != getResponseNormal || pdu[3] != choiceData {
		return su, false
	}

	d := pdu[4:]
	if len(d) < 6 || DataType(d[0]) != TypeStructure || d[1] != 0x02 || DataType(d[2]) != TypeInt8 {
		return su, false
	}

	su.Scaler = int8(d[3])
	if DataType(d[4]) == TypeEnum {
		su.Unit = d[5]
	}
	return su, true
}
