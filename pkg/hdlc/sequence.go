package hdlc

// IFrameControl builds the control byte of a numbered information frame.
func IFrameControl(sendSeq, recvSeq uint8, pollFinal bool) byte {
	c := (recvSeq&0x07)<<5 | (sendSeq&0x07)<<1
	if pollFinal {
		c |= 0x10
	}
	return c
}

// IsIFrame reports whether control belongs to an information frame.
func IsIFrame(control byte) bool {
	return control&0x01 == 0
}

// SendSeqOf extracts N(S) from an I-frame control byte.
func SendSeqOf(control byte) uint8 {
	return (control >> 1) & 0x07
}

// RecvSeqOf extracts N(R) from an I-frame control byte.
func RecvSeqOf(control byte) uint8 {
	return (control >> 5) & 0x07
}

// Sequencer tracks the 3 bit send and receive sequence numbers of one
// data link connection.
type Sequencer struct {
	send uint8
	recv uint8
}

// Next returns the control byte for the next outgoing I-frame and advances
// the send sequence.
func (s *Sequencer) Next() byte {
	c := IFrameControl(s.send, s.recv, true)
	s.send = (s.send + 1) & 0x07
	return c
}

// Observe updates the receive sequence from a frame received from the peer.
// Non I-frames leave the counters untouched.
func (s *Sequencer) Observe(control byte) {
	if !IsIFrame(control) {
		return
	}
	s.recv = (SendSeqOf(control) + 1) & 0x07
}

// Missed advances the receive sequence past an I-frame that arrived but
// could not be decoded. The peer counts it as sent either way.
func (s *Sequencer) Missed() {
	s.recv = (s.recv + 1) & 0x07
}

func (s *Sequencer) Reset() {
	s.send = 0
	s.recv = 0
}

func (s *Sequencer) SendSeq() uint8 { return s.send }
func (s *Sequencer) RecvSeq() uint8 { return s.recv }
