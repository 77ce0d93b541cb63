package hdlc

import (
	"bytes"
	"errors"
	"testing"
)

func TestChecksumX25(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0x906E {
		t.Fatalf("check value = 0x%04X, want 0x906E", got)
	}
}

func TestSNRMMinimal(t *testing.T) {
	got, err := SNRM(0x41, 0x03, nil)
	if err != nil {
		t.Fatalf("SNRM: %v", err)
	}
	want := []byte{0x7E, 0xA0, 0x07, 0x03, 0x41, 0x93, 0x5A, 0x64, 0x7E}
	if !bytes.Equal(got, want) {
		t.Fatalf("SNRM = [% X], want [% X]", got, want)
	}
}

func TestSNRMWithParams(t *testing.T) {
	raw, err := SNRM(0x03, 0x03, &Params{MaxInfoTx: 128, MaxInfoRx: 512, WindowTx: 1, WindowRx: 1})
	if err != nil {
		t.Fatalf("SNRM: %v", err)
	}
	f, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []byte{0x81, 0x80, 0x0D, 0x05, 0x01, 0x80, 0x06, 0x02, 0x02, 0x00, 0x07, 0x01, 0x01, 0x08, 0x01, 0x01}
	if !bytes.Equal(f.Info, want) {
		t.Fatalf("info = [% X], want [% X]", f.Info, want)
	}
	if f.Control != ControlSNRM {
		t.Fatalf("control = 0x%02X", f.Control)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{"disc", Frame{Dest: 0x03, Src: 0x03, Control: ControlDISC}},
		{"ua", Frame{Dest: 0x03, Src: 0x03, Control: ControlUA}},
		{"iframe", Frame{Dest: 0x03, Src: 0x03, Control: 0x32, Info: []byte{0xE6, 0xE6, 0x00, 0x62, 0x00}}},
		{"segmented", Frame{Dest: 0x21, Src: 0x03, Control: 0x10, Info: bytes.Repeat([]byte{0x55}, 40), Segmented: true}},
		{"max info", Frame{Dest: 0x03, Src: 0x03, Control: 0x10, Info: bytes.Repeat([]byte{0x7E}, MaxInfoLen)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encode(tt.frame)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			declared := int(raw[1]&lengthMaskHi)<<8 | int(raw[2])
			if declared != len(raw)-2 {
				t.Fatalf("length field = %d, frame has %d bytes between flags", declared, len(raw)-2)
			}

			got, err := Decode(raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got.Dest != tt.frame.Dest || got.Src != tt.frame.Src || got.Control != tt.frame.Control {
				t.Errorf("header = %02X/%02X/%02X, want %02X/%02X/%02X",
					got.Dest, got.Src, got.Control, tt.frame.Dest, tt.frame.Src, tt.frame.Control)
			}
			if got.Segmented != tt.frame.Segmented {
				t.Errorf("segmented = %v", got.Segmented)
			}
			if !bytes.Equal(got.Info, tt.frame.Info) {
				t.Errorf("info = [% X], want [% X]", got.Info, tt.frame.Info)
			}
		})
	}
}

func TestEncodeInfoTooLarge(t *testing.T) {
	_, err := Encode(Frame{Info: make([]byte, MaxInfoLen+1)})
	if !errors.Is(err, ErrInfoTooLarge) {
		t.Fatalf("err = %v, want ErrInfoTooLarge", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	good, err := IFrame(0x03, 0x03, 0x10, []byte{0xE6, 0xE6, 0x00, 0x62, 0x00})
	if err != nil {
		t.Fatalf("IFrame: %v", err)
	}

	corrupt := func(i int) []byte {
		b := append([]byte(nil), good...)
		b[i] ^= 0xFF
		return b
	}

	tests := []struct {
		name string
		raw  []byte
		want error
	}{
		{"too short", good[:8], ErrMalformed},
		{"no opening flag", corrupt(0), ErrMalformed},
		{"no closing flag", corrupt(len(good) - 1), ErrMalformed},
		{"bad format", func() []byte { b := append([]byte(nil), good...); b[1] = 0x10; return b }(), ErrMalformed},
		{"header corrupted", corrupt(3), ErrChecksumMismatch},
		{"info corrupted", corrupt(9), ErrChecksumMismatch},
		{"stray byte after HCS", append(append([]byte(nil), good[:8]...), 0x00, Flag), ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.raw); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeToleratesLengthMismatch(t *testing.T) {
	// Declared length 0x0A for a 7 byte header-only frame.
	b := []byte{Flag, 0xA0, 0x0A, 0x03, 0x03, ControlUA}
	b = appendChecksum(b, b[1:6])
	b = append(b, Flag)

	f, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Control != ControlUA {
		t.Fatalf("control = 0x%02X", f.Control)
	}
}

func TestFindFrame(t *testing.T) {
	frame, err := DISC(0x03, 0x03)
	if err != nil {
		t.Fatalf("DISC: %v", err)
	}

	t.Run("skips short span", func(t *testing.T) {
		// flag, garbage, flag shared with the frame opening
		buf := append([]byte{Flag, 0x01, 0x02}, frame...)
		start, n, err := FindFrame(buf)
		if err != nil {
			t.Fatalf("FindFrame: %v", err)
		}
		if start != 3 || n != len(frame) {
			t.Fatalf("start=%d len=%d, want 3/%d", start, n, len(frame))
		}
		if _, err := Decode(buf[start : start+n]); err != nil {
			t.Fatalf("Decode: %v", err)
		}
	})

	t.Run("idle flags", func(t *testing.T) {
		buf := append([]byte{0x00, Flag, Flag}, frame...)
		start, n, err := FindFrame(buf)
		if err != nil {
			t.Fatalf("FindFrame: %v", err)
		}
		if !bytes.Equal(buf[start:start+n], frame) {
			t.Fatalf("found [% X], want [% X]", buf[start:start+n], frame)
		}
	})

	t.Run("first of two frames", func(t *testing.T) {
		buf := append(append([]byte(nil), frame...), frame[1:]...)
		start, n, err := FindFrame(buf)
		if err != nil {
			t.Fatalf("FindFrame: %v", err)
		}
		if start != 0 || n != len(frame) {
			t.Fatalf("start=%d len=%d", start, n)
		}
	})

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, ErrIncomplete},
		{"no flag", []byte{0x01, 0x02}, ErrIncomplete},
		{"opening flag only", frame[:len(frame)-1], ErrIncomplete},
		{"short span only", []byte{Flag, 0x01, 0x02, Flag}, ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := FindFrame(tt.buf); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFindFrameUsesDeclaredLength(t *testing.T) {
	findAndDecode := func(t *testing.T, raw []byte, want Frame) {
		t.Helper()
		buf := append([]byte{Flag}, raw...)
		start, n, err := FindFrame(buf)
		if err != nil {
			t.Fatalf("FindFrame: %v", err)
		}
		if start != 1 || n != len(raw) {
			t.Fatalf("start=%d len=%d, want 1/%d", start, n, len(raw))
		}
		f, err := Decode(buf[start : start+n])
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if f.Control != want.Control || !bytes.Equal(f.Info, want.Info) {
			t.Fatalf("decoded %+v, want %+v", f, want)
		}
	}

	t.Run("flag in information field", func(t *testing.T) {
		want := Frame{Dest: 0x03, Src: 0x03, Control: 0x30,
			Info: []byte{0xE6, 0xE7, 0x00, 0xC4, 0x01, 0x01, 0x00, 0x11, 0x7E}}
		raw, err := Encode(want)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		findAndDecode(t, raw, want)
	})

	t.Run("flag in FCS", func(t *testing.T) {
		for i := 0; i <= 0xFFFF; i++ {
			info := []byte{0xE6, 0xE7, 0x00, byte(i >> 8), byte(i)}
			if bytes.IndexByte(info, Flag) >= 0 {
				continue
			}
			want := Frame{Dest: 0x03, Src: 0x03, Control: 0x52, Info: info}
			raw, err := Encode(want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if raw[len(raw)-3] != Flag && raw[len(raw)-2] != Flag {
				continue
			}
			findAndDecode(t, raw, want)
			return
		}
		t.Fatal("no information field produced a flag in the FCS")
	})

	t.Run("waits for the declared length", func(t *testing.T) {
		raw, err := Encode(Frame{Dest: 0x03, Src: 0x03, Control: 0x30, Info: []byte{0x01, 0x7E, 0x02}})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		cut := bytes.IndexByte(raw[1:], Flag) + 2
		if _, _, err := FindFrame(raw[:cut]); !errors.Is(err, ErrIncomplete) {
			t.Fatalf("err = %v, want ErrIncomplete", err)
		}
	})

	t.Run("missing closing flag", func(t *testing.T) {
		raw, err := Encode(Frame{Dest: 0x03, Src: 0x03, Control: 0x30, Info: []byte{0x01, 0x02}})
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if _, _, err := FindFrame(raw[:len(raw)-1]); !errors.Is(err, ErrIncomplete) {
			t.Fatalf("err = %v, want ErrIncomplete", err)
		}
	})

	t.Run("short declared length falls back to flags", func(t *testing.T) {
		b := []byte{Flag, 0xA0, 0x05, 0x03, 0x03, ControlUA}
		b = appendChecksum(b, b[1:6])
		b = append(b, Flag)
		start, n, err := FindFrame(b)
		if err != nil {
			t.Fatalf("FindFrame: %v", err)
		}
		if start != 0 || n != len(b) {
			t.Fatalf("start=%d len=%d, want 0/%d", start, n, len(b))
		}
	})
}

func TestIFrameRequiresInfo(t *testing.T) {
	if _, err := IFrame(0x03, 0x03, 0x10, nil); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}
