package cosem

import "fmt"

// Application context name LN referencing, no ciphering: 2.16.756.5.8.1.1
var appContextLN = []byte{0x60, 0x85, 0x74, 0x05, 0x08, 0x01, 0x01}

// Mechanism name low level security: 2.16.756.5.8.2.1
var mechanismLLS = []byte{0x60, 0x85, 0x74, 0x05, 0x08, 0x02, 0x01}

// Conformance block: get, set, selective access, block transfer with get.
var proposedConformance = []byte{0x00, 0x18, 0x1D}

const dlmsVersion = 0x06

// EncodeAARQ builds an association request. When password is non empty the
// request asks for low level security authentication with it. maxPDU is the
// client-max-receive-pdu-size announced to the meter.
func EncodeAARQ(password []byte, maxPDU uint16) []byte {
	if maxPDU == 0 {
		maxPDU = DefaultMaxPDUSize
	}

	body := make([]byte, 0, 64+len(password))

	// application-context-name [1]
	body = append(body, 0xA1, byte(2+len(appContextLN)), 0x06, byte(len(appContextLN)))
	body = append(body, appContextLN...)

	if len(password) > 0 {
		// sender-acse-requirements [10]: authentication functional unit
		body = append(body, 0x8A, 0x02, 0x07, 0x80)

		// mechanism-name [11]
		body = append(body, 0x8B, byte(len(mechanismLLS)))
		body = append(body, mechanismLLS...)

		// calling-authentication-value [12], charstring [0]
		body = append(body, 0xAC, byte(len(password)+2), 0x80, byte(len(password)))
		body = append(body, password...)
	}

	initiate := []byte{
		0x01,        // xDLMS InitiateRequest
		0x00,        // dedicated-key absent
		0x00,        // response-allowed default
		0x00,        // proposed-quality-of-service absent
		dlmsVersion, // proposed-dlms-version-number
	}
	// conformance [APPLICATION 31], 4 bytes, no unused bits
	initiate = append(initiate, 0x5F, 0x1F, 0x04, 0x00)
	initiate = append(initiate, proposedConformance...)
	initiate = append(initiate, byte(maxPDU>>8), byte(maxPDU))

	// user-information [30], octet string
	body = append(body, 0xBE, byte(len(initiate)+2), 0x04, byte(len(initiate)))
	body = append(body, initiate...)

	pdu := make([]byte, 0, len(body)+2)
	pdu = append(pdu, TagAARQ, byte(len(body)))
	pdu = append(pdu, body...)

	_lg.Debugf("AARQ %d bytes [% X]", len(pdu), pdu)
	return pdu
}

// ParseAARE checks the association-result of an association response.
// A rejection is returned as *AssociationError; a response without a
// recognisable result field is a protocol error.
func ParseAARE(pdu []byte) error {
	if len(pdu) < 3 {
		return fmt.Errorf("%w: AARE of %d bytes", ErrShortData, len(pdu))
	}
	if pdu[0] != TagAARE {
		return fmt.Errorf("%w: AARE tag 0x%02X, want 0x%02X", ErrProtocol, pdu[0], TagAARE)
	}

	// result [2]: A2 03 02 01 <result>
	for i := 2; i+4 < len(pdu); i++ {
		if pdu[i] != 0xA2 || pdu[i+1] != 0x03 || pdu[i+2] != 0x02 || pdu[i+3] != 0x01 {
			continue
		}

		result := AssociationResult(pdu[i+4])
		if result == AssociationAccepted {
			_lg.Debug("association accepted")
			return nil
		}

		assocErr := &AssociationError{Result: result}
		assocErr.Diagnostic, assocErr.HasDiagnostic = findDiagnostic(pdu[i+5:])
		return assocErr
	}

	return fmt.Errorf("%w: AARE without association-result", ErrProtocol)
}

// findDiagnostic looks for result-source-diagnostic [3]:
// A3 05 (A1|A2) 03 02 01 <diagnostic>
func findDiagnostic(b []byte) (uint8, bool) {
	for i := 0; i+6 < len(b); i++ {
		if b[i] == 0xA3 && b[i+1] == 0x05 && (b[i+2] == 0xA1 || b[i+2] == 0xA2) &&
			b[i+3] == 0x03 && b[i+4] == 0x02 && b[i+5] == 0x01 {
			return b[i+6], true
		}
	}
	return 0, false
}

// EncodeReleaseRequest builds a normal release request.
func EncodeReleaseRequest() []byte {
	return []byte{TagRLRQ, 0x00}
}
