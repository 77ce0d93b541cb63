package rs485

// ringBuffer is a fixed capacity byte FIFO. It is not safe for concurrent
// use; Port guards it with its mutex.
type ringBuffer struct {
	buf   [RxBufferSize]byte
	head  int // next read position
	count int
}

// push stores as many bytes as fit and returns how many were dropped.
func (r *ringBuffer) push(data []byte) (dropped int) {
	for _, b := range data {
		if r.count == len(r.buf) {
			dropped++
			continue
		}
		r.buf[(r.head+r.count)%len(r.buf)] = b
		r.count++
	}
	return dropped
}

// drain moves up to len(dst) bytes into dst.
func (r *ringBuffer) drain(dst []byte) int {
	n := 0
	for n < len(dst) && r.count > 0 {
		dst[n] = r.buf[r.head]
		r.head = (r.head + 1) % len(r.buf)
		r.count--
		n++
	}
	return n
}

// peek copies the buffered bytes without consuming them.
func (r *ringBuffer) peek() []byte {
	out := make([]byte, r.count)
	for i := range out {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

func (r *ringBuffer) len() int { return r.count }

func (r *ringBuffer) reset() {
	r.head = 0
	r.count = 0
}
