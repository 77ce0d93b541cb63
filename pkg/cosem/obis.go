package cosem

import (
	"fmt"
	"strconv"
	"strings"
)

// ObisCode is a COSEM logical name, A-B:C.D.E*F.
type ObisCode [6]byte

// NewObis builds an ObisCode from its six value groups.
func NewObis(a, b, c, d, e, f byte) ObisCode {
	return ObisCode{a, b, c, d, e, f}
}

// ParseObis parses "A-B:C.D.E*F". The "*F" group may be omitted and then
// defaults to 255. Dotted notation ("1.1.32.7.0.255") is accepted as well.
func ParseObis(s string) (ObisCode, error) {
	var code ObisCode

	groups := strings.FieldsFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '-' || r == ':' || r == '.' || r == '*'
	})
	switch len(groups) {
	case 5:
		groups = append(groups, "255")
	case 6:
	default:
		return ObisCode{}, fmt.Errorf("invalid OBIS code %q: want 6 value groups, got %d", s, len(groups))
	}

	for i, g := range groups {
		v, err := strconv.ParseUint(g, 10, 8)
		if err != nil {
			return ObisCode{}, fmt.Errorf("invalid OBIS code %q: group %d: %w", s, i, err)
		}
		code[i] = byte(v)
	}
	return code, nil
}

// MustParseObis is ParseObis for static tables; it panics on error.
func MustParseObis(s string) ObisCode {
	code, err := ParseObis(s)
	if err != nil {
		panic(err)
	}
	return code
}

func (o ObisCode) String() string {
	return fmt.Sprintf("%d-%d:%d.%d.%d*%d", o[0], o[1], o[2], o[3], o[4], o[5])
}

// MarshalText lets OBIS codes appear as strings in JSON and TOML.
func (o ObisCode) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *ObisCode) UnmarshalText(text []byte) error {
	code, err := ParseObis(string(text))
	if err != nil {
		return err
	}
	*o = code
	return nil
}
