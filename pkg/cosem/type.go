// Package cosem encodes and decodes the DLMS/COSEM application layer PDUs
// needed to read registers from a meter using logical name referencing:
// association (AARQ/AARE), GET.request/GET.response, release and the
// primitive A-XDR data types.
package cosem

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// APDU tags.
const (
	TagAARQ        byte = 0x60
	TagAARE        byte = 0x61
	TagRLRQ        byte = 0x62
	TagRLRE        byte = 0x63
	TagGetRequest  byte = 0xC0
	TagGetResponse byte = 0xC4
)

const (
	getRequestNormal         byte = 0x01
	getResponseNormal        byte = 0x01
	getResponseWithDatablock byte = 0x02
	getResponseWithList      byte = 0x03

	choiceData             byte = 0x00
	choiceDataAccessResult byte = 0x01
)

// Interface classes and attributes used by the reader.
const (
	ClassRegister         uint16 = 3
	ClassExtendedRegister uint16 = 4

	AttrLogicalName int8 = 1
	AttrValue       int8 = 2
	AttrScalerUnit  int8 = 3
)

const (
	DefaultMaxPDUSize uint16 = 128
	// MaxStringLen bounds decoded octet and visible strings.
	MaxStringLen = 128
)

var (
	ErrProtocol         = errors.New("cosem: protocol error")
	ErrShortData        = errors.New("cosem: not enough data")
	ErrRejected         = errors.New("cosem: association rejected")
	ErrAccessDenied     = errors.New("cosem: data access denied")
	ErrNotSupported     = errors.New("cosem: not supported")
	ErrUnsupportedType  = errors.New("cosem: unsupported data type")
	ErrInvokeIDMismatch = errors.New("cosem: invoke id mismatch")
)

var _lg = logrus.WithField("module", "cosem")

// DataType is an A-XDR data type tag.
type DataType byte

const (
	TypeNull          DataType = 0x00
	TypeArray         DataType = 0x01
	TypeStructure     DataType = 0x02
	TypeBoolean       DataType = 0x03
	TypeInt32         DataType = 0x05
	TypeUint32        DataType = 0x06
	TypeOctetString   DataType = 0x09
	TypeVisibleString DataType = 0x0A
	TypeInt8          DataType = 0x0F
	TypeInt16         DataType = 0x10
	TypeUint8         DataType = 0x11
	TypeUint16        DataType = 0x12
	TypeInt64         DataType = 0x14
	TypeUint64        DataType = 0x15
	TypeEnum          DataType = 0x16
	TypeFloat32       DataType = 0x17
	TypeFloat64       DataType = 0x18
)

var dataTypeNames = map[DataType]string{
	TypeNull:          "null-data",
	TypeArray:         "array",
	TypeStructure:     "structure",
	TypeBoolean:       "boolean",
	TypeInt32:         "double-long",
	TypeUint32:        "double-long-unsigned",
	TypeOctetString:   "octet-string",
	TypeVisibleString: "visible-string",
	TypeInt8:          "integer",
	TypeInt16:         "long",
	TypeUint8:         "unsigned",
	TypeUint16:        "long-unsigned",
	TypeInt64:         "long64",
	TypeUint64:        "long64-unsigned",
	TypeEnum:          "enum",
	TypeFloat32:       "float32",
	TypeFloat64:       "float64",
}

func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(0x%02X)", byte(t))
}

// Value is a decoded primitive. Only the field matching Type is set:
// Int for signed integers, Uint for unsigned integers, booleans and enums,
// Float for floats, Bytes for strings and Count for structures and arrays.
type Value struct {
	Type      DataType
	Int       int64
	Uint      uint64
	Float     float64
	Bytes     []byte
	Count     int
	Truncated bool
}

// Float64 converts a numeric value to float64. ok is false for non numeric
// types.
func (v Value) Float64() (f float64, ok bool) {
	switch v.Type {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypeEnum:
		return float64(v.Uint), true
	case TypeInt8, TypeInt16, TypeInt32, TypeInt64:
		return float64(v.Int), true
	case TypeFloat32, TypeFloat64:
		return v.Float, true
	}
	return 0, false
}

func (v Value) String() string {
	switch v.Type {
	case TypeOctetString:
		return fmt.Sprintf("%s[% X]", v.Type, v.Bytes)
	case TypeVisibleString:
		return fmt.Sprintf("%s(%q)", v.Type, v.Bytes)
	case TypeStructure, TypeArray:
		return fmt.Sprintf("%s(%d)", v.Type, v.Count)
	case TypeBoolean:
		return fmt.Sprintf("%s(%t)", v.Type, v.Uint != 0)
	case TypeNull:
		return v.Type.String()
	}
	f, _ := v.Float64()
	return fmt.Sprintf("%s(%g)", v.Type, f)
}

// AssociationResult is the association-result field of an AARE.
type AssociationResult uint8

const (
	AssociationAccepted          AssociationResult = 0
	AssociationRejectedPermanent AssociationResult = 1
	AssociationRejectedTransient AssociationResult = 2
)

func (r AssociationResult) String() string {
	switch r {
	case AssociationAccepted:
		return "accepted"
	case AssociationRejectedPermanent:
		return "rejected-permanent"
	case AssociationRejectedTransient:
		return "rejected-transient"
	}
	return fmt.Sprintf("result(%d)", uint8(r))
}

// AssociationError is returned when the meter rejects an association.
// It matches ErrRejected with errors.Is.
type AssociationError struct {
	Result AssociationResult
	// Diagnostic is the acse-service-user diagnostic, e.g. 13 for an
	// authentication failure. Only meaningful when HasDiagnostic is set.
	Diagnostic    uint8
	HasDiagnostic bool
}

func (e *AssociationError) Error() string {
	if e.HasDiagnostic {
		return fmt.Sprintf("cosem: association %s (diagnostic %d %s)", e.Result, e.Diagnostic, diagnosticName(e.Diagnostic))
	}
	return fmt.Sprintf("cosem: association %s", e.Result)
}

func (e *AssociationError) Is(target error) bool {
	return target == ErrRejected
}

// Permanent reports whether retrying with the same credentials is pointless.
func (e *AssociationError) Permanent() bool {
	return e.Result == AssociationRejectedPermanent
}

func diagnosticName(d uint8) string {
	switch d {
	case 0:
		return "null"
	case 1:
		return "no-reason-given"
	case 2:
		return "application-context-name-not-supported"
	case 11:
		return "authentication-mechanism-name-not-recognised"
	case 12:
		return "authentication-mechanism-name-required"
	case 13:
		return "authentication-failure"
	case 14:
		return "authentication-required"
	}
	return "unknown"
}

// AccessError carries the data-access-result of a failed GET. It matches
// ErrAccessDenied with errors.Is.
type AccessError struct {
	Result uint8
}

var accessResultNames = map[uint8]string{
	1:   "hardware-fault",
	2:   "temporary-failure",
	3:   "read-write-denied",
	4:   "object-undefined",
	9:   "object-class-inconsistent",
	11:  "object-unavailable",
	12:  "type-unmatched",
	13:  "scope-of-access-violated",
	14:  "data-block-unavailable",
	250: "other-reason",
}

func (e *AccessError) Error() string {
	name, ok := accessResultNames[e.Result]
	if !ok {
		name = "unknown"
	}
	return fmt.Sprintf("cosem: data access result %d (%s)", e.Result, name)
}

func (e *AccessError) Is(target error) bool {
	return target == ErrAccessDenied
}
