package rs485

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/hdlc"
)

// fakeLine is an in-memory serial line. Bytes sent to rx are delivered to
// the port's reader; writes are recorded together with the direction state.
type fakeLine struct {
	pin *recordingPin

	mu      sync.Mutex
	written []byte
	txHigh  []bool

	rx        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeLine(pin *recordingPin) *fakeLine {
	return &fakeLine{pin: pin, rx: make(chan []byte), closed: make(chan struct{})}
}

func (f *fakeLine) Read(b []byte) (int, error) {
	select {
	case d := <-f.rx:
		return copy(b, d), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeLine) Write(b []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, b...)
	if f.pin != nil {
		f.txHigh = append(f.txHigh, f.pin.high())
	}
	return len(b), nil
}

func (f *fakeLine) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type recordingPin struct {
	mu     sync.Mutex
	state  bool
	events []bool
}

func (r *recordingPin) SetTransmit(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = on
	r.events = append(r.events, on)
	return nil
}

func (r *recordingPin) high() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func newTestPort(t *testing.T, pin *recordingPin) (*Port, *fakeLine, *[]time.Duration) {
	t.Helper()
	line := newFakeLine(pin)
	opts := Options{BaudRate: 9600}
	if pin != nil {
		opts.Direction = pin
	}
	p := NewPort(line, opts)

	var sleeps []time.Duration
	p.sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	t.Cleanup(func() { p.Close() })
	return p, line, &sleeps
}

func waitBuffered(t *testing.T, p *Port, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for p.Buffered() < n {
		if time.Now().After(deadline) {
			t.Fatalf("buffered %d bytes, want %d", p.Buffered(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSendHoldsDirectionUntilDrained(t *testing.T) {
	pin := &recordingPin{}
	p, line, sleeps := newTestPort(t, pin)

	frame := []byte{0x7E, 0xA0, 0x07, 0x03, 0x03, 0x93, 0x8C, 0x11, 0x7E}
	n, err := p.Send(frame)
	if err != nil || n != len(frame) {
		t.Fatalf("Send = %d, %v", n, err)
	}

	if !bytes.Equal(line.written, frame) {
		t.Fatalf("written [% X]", line.written)
	}
	if len(line.txHigh) != 1 || !line.txHigh[0] {
		t.Fatalf("write happened with direction low")
	}
	if len(pin.events) != 2 || !pin.events[0] || pin.events[1] {
		t.Fatalf("direction events = %v, want [true false]", pin.events)
	}

	// 9 bytes × 10 bits at 9600 baud + 2ms
	wantDrain := 9375*time.Microsecond + 2*time.Millisecond
	if len(*sleeps) != 2 || (*sleeps)[0] != turnaroundDelay || (*sleeps)[1] != wantDrain {
		t.Fatalf("sleeps = %v, want [%s %s]", *sleeps, turnaroundDelay, wantDrain)
	}
}

func TestSendEmpty(t *testing.T) {
	p, _, _ := newTestPort(t, nil)
	if _, err := p.Send(nil); !errors.Is(err, ErrEmptySend) {
		t.Fatalf("err = %v, want ErrEmptySend", err)
	}
}

func TestDrainTime(t *testing.T) {
	p := &Port{baud: 115200}
	if got, want := p.DrainTime(0), drainMargin; got != want {
		t.Fatalf("DrainTime(0) = %s, want %s", got, want)
	}
	p.baud = 9600
	if got := p.DrainTime(96); got != 102*time.Millisecond {
		t.Fatalf("DrainTime(96) = %s, want 102ms", got)
	}
}

func TestReceiveFrame(t *testing.T) {
	p, line, _ := newTestPort(t, nil)

	frame := []byte{0x7E, 0xA0, 0x07, 0x03, 0x03, 0x73, 0x82, 0xF6, 0x7E}
	line.rx <- frame

	buf := make([]byte, 64)
	n, err := p.Receive(buf, time.Second)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !bytes.Equal(buf[:n], frame) {
		t.Fatalf("received [% X]", buf[:n])
	}
	if p.Buffered() != 0 {
		t.Fatalf("%d bytes left in buffer", p.Buffered())
	}
}

func TestFrameCompleteIgnoresFlagInsideFrame(t *testing.T) {
	p, _, _ := newTestPort(t, nil)

	frame, err := hdlc.Encode(hdlc.Frame{Dest: 0x03, Src: 0x03, Control: 0x30,
		Info: []byte{0xE6, 0xE7, 0x00, 0xC4, 0x01, 0x01, 0x00, 0x11, 0x7E}})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	inner := bytes.IndexByte(frame[8:], 0x7E) + 8

	p.mu.Lock()
	p.ring.push(frame[:inner+1])
	p.mu.Unlock()
	if p.frameComplete() {
		t.Fatal("frame reported complete at the flag inside its information field")
	}

	p.mu.Lock()
	p.ring.push(frame[inner+1:])
	p.mu.Unlock()
	if !p.frameComplete() {
		t.Fatal("whole frame not reported complete")
	}
}

func TestReceiveSmallBuffer(t *testing.T) {
	p, line, _ := newTestPort(t, nil)
	line.rx <- []byte{0x7E, 0x01, 0x02, 0x03, 0x7E}

	buf := make([]byte, 3)
	n, err := p.Receive(buf, time.Second)
	if err != nil || n != 3 {
		t.Fatalf("Receive = %d, %v", n, err)
	}
	n, err = p.Receive(buf, time.Second)
	if err != nil || n != 2 || buf[1] != 0x7E {
		t.Fatalf("second Receive = %d [% X], %v", n, buf[:n], err)
	}
}

func TestReceiveTimeout(t *testing.T) {
	p, _, _ := newTestPort(t, nil)

	start := time.Now()
	n, err := p.Receive(make([]byte, 16), 20*time.Millisecond)
	if !errors.Is(err, ErrTimeout) || n != 0 {
		t.Fatalf("Receive = %d, %v; want 0, ErrTimeout", n, err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("returned before the timeout")
	}
}

func TestFlush(t *testing.T) {
	p, line, _ := newTestPort(t, nil)
	line.rx <- []byte{0x7E, 0xFF, 0x7E}
	waitBuffered(t, p, 3)

	p.Flush()
	if p.Buffered() != 0 {
		t.Fatalf("Buffered after flush = %d", p.Buffered())
	}
	if _, err := p.Receive(make([]byte, 16), 10*time.Millisecond); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestReceiveAfterClose(t *testing.T) {
	p, _, _ := newTestPort(t, nil)
	p.Close()
	if _, err := p.Receive(make([]byte, 16), time.Second); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want ErrClosed", err)
	}
}

func TestPortCountsDroppedBytes(t *testing.T) {
	p, line, _ := newTestPort(t, nil)

	for i := 0; i < 3; i++ {
		line.rx <- bytes.Repeat([]byte{0x55}, 200)
	}
	waitBuffered(t, p, RxBufferSize)

	if got := p.Dropped(); got != 600-RxBufferSize {
		t.Fatalf("Dropped = %d, want %d", got, 600-RxBufferSize)
	}
}

func TestRingBufferOverflowDrops(t *testing.T) {
	var r ringBuffer
	data := bytes.Repeat([]byte{0xAA}, RxBufferSize+88)
	data[RxBufferSize-1] = 0x7E

	if dropped := r.push(data); dropped != 88 {
		t.Fatalf("dropped %d, want 88", dropped)
	}
	if got := r.peek(); len(got) != RxBufferSize || got[RxBufferSize-1] != 0x7E {
		t.Fatalf("peek returned %d bytes, want %d ending in a flag", len(got), RxBufferSize)
	}

	out := make([]byte, 100)
	if n := r.drain(out); n != 100 {
		t.Fatalf("drained %d", n)
	}
	// wrap around
	r.push([]byte{1, 2, 3})
	if r.len() != RxBufferSize-100+3 {
		t.Fatalf("len = %d", r.len())
	}
	if got := r.peek(); !bytes.Equal(got[len(got)-3:], []byte{1, 2, 3}) || got[0] != 0xAA {
		t.Fatalf("peek after wrap ends in [% X]", got[len(got)-3:])
	}

	r.reset()
	if len(r.peek()) != 0 || r.len() != 0 {
		t.Fatalf("reset left %d bytes", r.len())
	}
}

func TestGPIODirection(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "gpio17")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "value"), []byte("0"), 0o644); err != nil {
		t.Fatal(err)
	}

	g, err := newGPIODirection(root, 17)
	if err != nil {
		t.Fatalf("newGPIODirection: %v", err)
	}
	defer g.Close()

	direction, _ := os.ReadFile(filepath.Join(dir, "direction"))
	if string(direction) != "low" {
		t.Fatalf("direction = %q", direction)
	}

	if err := g.SetTransmit(true); err != nil {
		t.Fatal(err)
	}
	if v, _ := os.ReadFile(filepath.Join(dir, "value")); string(v) != "1" {
		t.Fatalf("value = %q, want 1", v)
	}
	if err := g.SetTransmit(false); err != nil {
		t.Fatal(err)
	}
	if v, _ := os.ReadFile(filepath.Join(dir, "value")); string(v) != "0" {
		t.Fatalf("value = %q, want 0", v)
	}
}
