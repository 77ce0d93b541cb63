package rs485

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/hdlc"
	"github.com/jacobsa/go-serial/serial"
)

// Port is a half-duplex serial link. A background goroutine moves incoming
// bytes into a ring buffer and signals their arrival; Receive blocks on that
// signal. Send and Receive must not be called concurrently with each other.
type Port struct {
	rw   io.ReadWriteCloser
	dir  DirectionControl
	baud uint

	mu      sync.Mutex
	ring    ringBuffer
	dropped uint64
	readErr error

	// rxReady is a binary semaphore: at most one pending arrival signal.
	rxReady  chan struct{}
	readDone chan struct{}

	closeOnce sync.Once
	sleep     func(time.Duration)
}

// Open opens opts.PortName at 8N1 and starts receiving.
func Open(opts Options) (*Port, error) {
	serialOpts := serial.OpenOptions{
		PortName:        opts.PortName,
		BaudRate:        opts.baudRate(),
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}
	if opts.KernelRS485 {
		serialOpts.Rs485Enable = true
		serialOpts.Rs485RtsHighDuringSend = true
	}

	rw, err := serial.Open(serialOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", opts.PortName, err)
	}

	_lg.Infof("Opened %s at %d baud (8N1, kernel rs485=%t)", opts.PortName, opts.baudRate(), opts.KernelRS485)
	return NewPort(rw, opts), nil
}

// NewPort wraps an already open byte stream. opts.PortName is ignored.
func NewPort(rw io.ReadWriteCloser, opts Options) *Port {
	dir := opts.Direction
	if dir == nil {
		dir = NoDirection{}
	}

	p := &Port{
		rw:       rw,
		dir:      dir,
		baud:     opts.baudRate(),
		rxReady:  make(chan struct{}, 1),
		readDone: make(chan struct{}),
		sleep:    time.Sleep,
	}
	go p.readLoop()
	return p
}

func (p *Port) readLoop() {
	defer close(p.readDone)

	buf := make([]byte, readChunkSize)
	for {
		n, err := p.rw.Read(buf)
		if n > 0 {
			p.mu.Lock()
			if dropped := p.ring.push(buf[:n]); dropped > 0 {
				p.dropped += uint64(dropped)
				_lg.Debugf("RX buffer full, dropped %d bytes", dropped)
			}
			p.mu.Unlock()

			select {
			case p.rxReady <- struct{}{}:
			default:
			}
		}
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			if err != io.EOF {
				_lg.Debugf("reader stopped: %v", err)
			}
			return
		}
	}
}

// DrainTime is how long n bytes take to leave the UART at the port's baud
// rate, plus a fixed margin.
func (p *Port) DrainTime(n int) time.Duration {
	return time.Duration(n*bitsPerByte)*time.Second/time.Duration(p.baud) + drainMargin
}

// Send drives the bus, writes data and holds the bus until the transmission
// has drained. The direction line is released even when the write fails.
func (p *Port) Send(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, ErrEmptySend
	}

	if err := p.dir.SetTransmit(true); err != nil {
		return 0, fmt.Errorf("rs485: assert direction: %w", err)
	}
	p.sleep(turnaroundDelay)

	n, err := p.rw.Write(data)
	drain := p.DrainTime(n)
	p.sleep(drain)

	if derr := p.dir.SetTransmit(false); derr != nil && err == nil {
		err = fmt.Errorf("rs485: release direction: %w", derr)
	}
	if err != nil {
		return n, fmt.Errorf("rs485: write: %w", err)
	}

	_lg.Debugf("TX %d bytes (drain %s) [% X]", n, drain, data)
	return n, nil
}

// Receive waits up to timeout for data, then keeps polling briefly until the
// buffered bytes hold a complete HDLC frame so that a whole frame is returned.
// It copies at most len(buf) bytes and returns ErrTimeout when nothing
// arrived.
func (p *Port) Receive(buf []byte, timeout time.Duration) (int, error) {
	if err := p.waitData(timeout); err != nil {
		return 0, err
	}

	for waited := time.Duration(0); waited < frameMaxWait; waited += framePollEvery {
		p.sleep(framePollEvery)
		if p.frameComplete() {
			break
		}
	}

	p.mu.Lock()
	n := p.ring.drain(buf)
	if p.ring.len() == 0 {
		p.resetSignal()
	}
	p.mu.Unlock()

	_lg.Debugf("RX %d bytes [% X]", n, buf[:n])
	return n, nil
}

// waitData blocks until at least one byte is buffered. Stale arrival
// signals left behind by Flush are absorbed by re-checking the buffer.
func (p *Port) waitData(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for p.Buffered() == 0 {
		select {
		case <-p.rxReady:
		case <-timer.C:
			return ErrTimeout
		case <-p.readDone:
			if p.Buffered() == 0 {
				return p.closedErr()
			}
		}
	}
	return nil
}

// frameComplete reports whether the buffered bytes hold a whole HDLC frame,
// judged by the length in its format field rather than the next flag.
func (p *Port) frameComplete() bool {
	p.mu.Lock()
	pending := p.ring.peek()
	p.mu.Unlock()

	_, _, err := hdlc.FindFrame(pending)
	return err == nil
}

// Flush discards everything received so far.
func (p *Port) Flush() {
	p.mu.Lock()
	p.ring.reset()
	p.resetSignal()
	p.mu.Unlock()
}

// resetSignal clears a pending arrival signal. Caller holds p.mu.
func (p *Port) resetSignal() {
	select {
	case <-p.rxReady:
	default:
	}
}

// Buffered returns the number of received bytes not yet consumed.
func (p *Port) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ring.len()
}

// Dropped returns the number of bytes lost to a full receive buffer.
func (p *Port) Dropped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Port) closedErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil && p.readErr != io.EOF {
		return fmt.Errorf("%w: %v", ErrClosed, p.readErr)
	}
	return ErrClosed
}

func (p *Port) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.rw.Close()
		if c, ok := p.dir.(io.Closer); ok {
			if cerr := c.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}
