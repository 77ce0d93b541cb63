package cosem

import "fmt"

// AttributeDescriptor addresses one attribute of a COSEM object.
type AttributeDescriptor struct {
	ClassID   uint16
	Obis      ObisCode
	Attribute int8
}

func (a AttributeDescriptor) String() string {
	return fmt.Sprintf("class %d %s attr %d", a.ClassID, a.Obis, a.Attribute)
}

// EncodeGetRequest builds a GET.request-normal without selective access:
//
//	C0 01 <invoke> <class(2)> <obis(6)> <attribute> 00
func EncodeGetRequest(invokeID byte, attr AttributeDescriptor) []byte {
	pdu := make([]byte, 0, 14)
	pdu = append(pdu, TagGetRequest, getRequestNormal, invokeID,
		byte(attr.ClassID>>8), byte(attr.ClassID))
	pdu = append(pdu, attr.Obis[:]...)
	pdu = append(pdu, byte(attr.Attribute), 0x00)

	_lg.Debugf("GET.request %s invoke %d [% X]", attr, invokeID, pdu)
	return pdu
}

// GetResponse is a decoded GET.response-normal carrying data.
type GetResponse struct {
	InvokeID byte
	Value    Value
}

// ParseGetResponse decodes a GET.response. A data-access-result is returned
// as *AccessError. Block transfer responses are not supported.
func ParseGetResponse(pdu []byte) (*GetResponse, error) {
	if len(pdu) < 4 {
		return nil, fmt.Errorf("%w: GET.response of %d bytes", ErrShortData, len(pdu))
	}
	if pdu[0] != TagGetResponse {
		return nil, fmt.Errorf("%w: GET.response tag 0x%02X", ErrProtocol, pdu[0])
	}

	switch pdu[1] {
	case getResponseNormal:
		switch pdu[3] {
		case choiceData:
			v, _, err := DecodeData(pdu[4:])
			if err != nil {
				return nil, err
			}
			return &GetResponse{InvokeID: pdu[2], Value: v}, nil

		case choiceDataAccessResult:
			result := uint8(0xFF)
			if len(pdu) > 4 {
				result = pdu[4]
			}
			return nil, &AccessError{Result: result}
		}
		return nil, fmt.Errorf("%w: GET.response choice 0x%02X", ErrProtocol, pdu[3])

	case getResponseWithDatablock:
		return nil, fmt.Errorf("%w: GET.response with datablock", ErrNotSupported)

	case getResponseWithList:
		return nil, fmt.Errorf("%w: GET.response with list", ErrNotSupported)
	}

	return nil, fmt.Errorf("%w: GET.response type 0x%02X", ErrProtocol, pdu[1])
}

// CheckInvokeID verifies that a response echoes the invoke-id of its
// request. Only the low 4 bits carry the id; the rest are priority and
// service class bits.
func CheckInvokeID(sent, received byte) error {
	if sent&0x0F != received&0x0F {
		return fmt.Errorf("%w: sent %d, received %d", ErrInvokeIDMismatch, sent&0x0F, received&0x0F)
	}
	return nil
}
