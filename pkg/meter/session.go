package meter

import (
	"errors"
	"fmt"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/cosem"
	"github.com/NotCoffee418/dlms_power_meter/pkg/hdlc"
	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
)

type scalerEntry struct {
	multiplier float64
	cached     bool
}

// Session owns the link state for one meter. Scalers and the skip list
// survive reconnects: scalers are stable for the life of a meter and a
// register that was refused once will be refused again.
//
// A Session is not safe for concurrent use.
type Session struct {
	transport Transport
	cfg       Config
	table     []ObisMapping

	state    State
	reached  State
	client   byte
	server   byte
	seq      hdlc.Sequencer
	invokeID byte

	scalers []scalerEntry
	skip    []bool

	rx    []byte
	sleep func(time.Duration)
	now   func() time.Time
}

// NewSession creates a disconnected session reading table over t.
func NewSession(t Transport, cfg Config, table []ObisMapping) *Session {
	return &Session{
		transport: t,
		cfg:       cfg,
		table:     table,
		scalers:   make([]scalerEntry, len(table)),
		skip:      make([]bool, len(table)),
		rx:        make([]byte, 2*hdlc.MaxFrameLen),
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

func (s *Session) State() State { return s.state }

// LastPollState is the state the last Poll reached before it disconnected:
// StateAssociated when the association was up, StateError when connecting
// failed.
func (s *Session) LastPollState() State { return s.reached }

func (s *Session) Table() []ObisMapping { return s.table }

// SkippedEntries returns the registers the meter refused.
func (s *Session) SkippedEntries() []ObisMapping {
	var out []ObisMapping
	for i, skipped := range s.skip {
		if skipped {
			out = append(out, s.table[i])
		}
	}
	return out
}

// ResetCaches forgets every cached scaler and skipped register, e.g. after
// the meter was swapped.
func (s *Session) ResetCaches() {
	for i := range s.table {
		s.scalers[i] = scalerEntry{}
		s.skip[i] = false
	}
}

// Connect establishes the HDLC link (SNRM/UA) and the COSEM association
// (AARQ/AARE). An existing connection is torn down first. Failures leave the
// session in StateError; callers should Disconnect.
func (s *Session) Connect() error {
	if s.state != StateDisconnected {
		_lg.Warn("Already connected, disconnecting first")
		s.Disconnect()
	}

	server, err := hdlc.ServerAddress(s.cfg.ServerLogical, s.cfg.ServerPhysical)
	if err != nil {
		return err
	}
	s.client = hdlc.ClientAddress(s.cfg.ClientAddress)
	s.server = server
	s.seq.Reset()
	s.invokeID = 0

	_lg.Infof("Connecting to meter (client=0x%02X server=0x%02X logical=%d physical=%d)",
		s.client, s.server, s.cfg.ServerLogical, s.cfg.ServerPhysical)

	snrm, err := hdlc.SNRM(s.client, s.server, s.cfg.SNRMParams)
	if err != nil {
		return err
	}
	resp, err := s.transact(snrm)
	if err != nil {
		s.state = StateError
		return fmt.Errorf("SNRM: %w", err)
	}
	if resp.Control != hdlc.ControlUA {
		s.state = StateError
		return fmt.Errorf("%w: expected UA (0x%02X), got 0x%02X", ErrUnexpectedControl, hdlc.ControlUA, resp.Control)
	}
	s.state = StateHdlcConnected
	_lg.Info("HDLC connected")

	s.sleep(s.cfg.SettleDelay)

	aare, err := s.request(cosem.EncodeAARQ([]byte(s.cfg.Password), s.cfg.MaxPDUSize))
	if err != nil {
		s.state = StateError
		return fmt.Errorf("AARQ: %w", err)
	}
	if err := cosem.ParseAARE(aare); err != nil {
		s.state = StateError
		return err
	}

	s.state = StateAssociated
	_lg.Info("COSEM association established")
	return nil
}

// Disconnect releases the association and the HDLC link. Errors on the way
// are ignored; the session always ends up disconnected.
func (s *Session) Disconnect() error {
	if s.state == StateDisconnected {
		return nil
	}

	if s.state == StateAssociated {
		if _, err := s.request(cosem.EncodeReleaseRequest()); err != nil {
			_lg.Debugf("release request: %v", err)
		}
	}

	if disc, err := hdlc.DISC(s.client, s.server); err == nil {
		if _, err := s.transact(disc); err != nil {
			_lg.Debugf("DISC: %v", err)
		}
	}

	s.state = StateDisconnected
	s.seq.Reset()
	_lg.Info("Meter disconnected")
	return nil
}

// ReadAll reads every register that is not skip listed. Scalers that are not
// cached yet are read first; one lost to a line error is read again on the
// next call. A failing register only increments ErrorCount; a register the
// meter refuses is skipped from then on. ErrNoReadings is
// returned, together with the empty snapshot, when nothing could be read.
func (s *Session) ReadAll() (*types.MeterReadings, error) {
	if s.state != StateAssociated {
		return nil, ErrNotAssociated
	}

	readings := &types.MeterReadings{Timestamp: s.now()}

	for i, entry := range s.table {
		if s.skip[i] || s.scalers[i].cached {
			continue
		}
		multiplier, err := s.readScaler(entry)
		s.sleep(s.cfg.InterRequestDelay)
		if err != nil && !errors.Is(err, cosem.ErrInvokeIDMismatch) {
			// lost on the line, try again next cycle
			_lg.Warnf("Failed to read scaler for %s, using 1 this cycle: %v", entry.Name, err)
			continue
		}
		if err != nil {
			_lg.Warnf("Failed to read scaler for %s: %v", entry.Name, err)
			multiplier = 1
		}
		s.scalers[i] = scalerEntry{multiplier: multiplier, cached: true}
	}

	skipped := 0
	for _, sk := range s.skip {
		if sk {
			skipped++
		}
	}
	_lg.Infof("Reading %d registers (skipping %d unsupported)", len(s.table)-skipped, skipped)
	start := s.now()

	for i, entry := range s.table {
		if s.skip[i] {
			continue
		}

		value, err := s.readValue(entry)
		if err != nil {
			readings.ErrorCount++
			_lg.Warnf("%s (%s): read failed: %v", entry.Name, entry.Obis, err)
			if errors.Is(err, cosem.ErrAccessDenied) {
				s.skip[i] = true
				_lg.Warnf("%s (%s): marked as unsupported, will skip", entry.Name, entry.Obis)
			}
		} else {
			*entry.Field(readings) = s.scale(i, value)
			readings.ReadCount++
		}

		s.sleep(s.cfg.InterRequestDelay)
	}

	readings.Valid = readings.ReadCount > 0
	_lg.Infof("Meter read complete: %d/%d successful in %s",
		readings.ReadCount, len(s.table)-skipped, s.now().Sub(start).Round(time.Millisecond))

	if !readings.Valid {
		return readings, ErrNoReadings
	}
	return readings, nil
}

// Poll runs one full cycle: connect, read everything, disconnect. The link
// is always released, also after a failed connect.
func (s *Session) Poll() (*types.MeterReadings, error) {
	start := s.now()

	if err := s.Connect(); err != nil {
		_lg.Errorf("Meter connect failed: %v", err)
		s.reached = StateError
		s.Disconnect()
		return nil, err
	}
	s.reached = s.state

	readings, err := s.ReadAll()
	if err != nil {
		_lg.Errorf("Meter read failed: %v", err)
	}

	s.Disconnect()
	_lg.Debugf("Poll cycle took %s", s.now().Sub(start).Round(time.Millisecond))
	return readings, err
}

func (s *Session) readScaler(entry ObisMapping) (float64, error) {
	id := s.nextInvokeID()
	resp, err := s.request(cosem.EncodeGetRequest(id, cosem.AttributeDescriptor{
		ClassID:   entry.ClassID,
		Obis:      entry.Obis,
		Attribute: cosem.AttrScalerUnit,
	}))
	if err != nil {
		return 0, err
	}
	if len(resp) >= 3 && resp[0] == cosem.TagGetResponse {
		if err := cosem.CheckInvokeID(id, resp[2]); err != nil {
			return 0, err
		}
	}

	su, ok := cosem.ParseScalerUnit(resp)
	if !ok {
		_lg.Debugf("%s: no scaler_unit, using 1", entry.Name)
		return 1, nil
	}
	_lg.Debugf("%s: scaler=%d (x%g) unit=%d", entry.Name, su.Scaler, su.Multiplier(), su.Unit)
	return su.Multiplier(), nil
}

func (s *Session) readValue(entry ObisMapping) (cosem.Value, error) {
	id := s.nextInvokeID()
	resp, err := s.request(cosem.EncodeGetRequest(id, cosem.AttributeDescriptor{
		ClassID:   entry.ClassID,
		Obis:      entry.Obis,
		Attribute: cosem.AttrValue,
	}))
	if err != nil {
		return cosem.Value{}, err
	}

	get, err := cosem.ParseGetResponse(resp)
	if err != nil {
		return cosem.Value{}, err
	}
	if err := cosem.CheckInvokeID(id, get.InvokeID); err != nil {
		return cosem.Value{}, err
	}
	return get.Value, nil
}

// scale converts a register value to float64 and applies the cached scaler.
// Non numeric values read as 0.
func (s *Session) scale(i int, v cosem.Value) float64 {
	raw, ok := v.Float64()
	if !ok {
		_lg.Warnf("Unexpected data type %s for %s", v.Type, s.table[i].Name)
		return 0
	}
	if s.scalers[i].cached {
		raw *= s.scalers[i].multiplier
	}
	return raw
}

// garbled reports errors for an answer that reached us but could not be
// read as a frame.
func garbled(err error) bool {
	return errors.Is(err, hdlc.ErrChecksumMismatch) ||
		errors.Is(err, hdlc.ErrIncomplete) ||
		errors.Is(err, hdlc.ErrCorrupt) ||
		errors.Is(err, hdlc.ErrMalformed) ||
		errors.Is(err, ErrShortResponse)
}

func (s *Session) nextInvokeID() byte {
	id := s.invokeID
	s.invokeID++
	return id
}

// request sends an APDU in an I-frame and returns the APDU of the answer.
func (s *Session) request(apdu []byte) ([]byte, error) {
	frame, err := hdlc.IFrame(s.client, s.server, s.seq.Next(), hdlc.WrapLLC(apdu))
	if err != nil {
		return nil, err
	}

	resp, err := s.transact(frame)
	if err != nil {
		if garbled(err) {
			s.seq.Missed()
		}
		return nil, err
	}
	s.seq.Observe(resp.Control)
	return hdlc.StripLLC(resp.Info), nil
}

// transact performs one request/response exchange on the bus.
func (s *Session) transact(frame []byte) (*hdlc.Frame, error) {
	s.transport.Flush()

	_lg.Debugf("HDLC TX [% X]", frame)
	if _, err := s.transport.Send(frame); err != nil {
		return nil, err
	}

	s.sleep(s.cfg.InterFrameDelay)

	n, err := s.transport.Receive(s.rx, s.cfg.ResponseTimeout)
	if err != nil {
		return nil, err
	}
	_lg.Debugf("HDLC RX [% X]", s.rx[:n])

	if n < 9 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortResponse, n)
	}

	start, length, err := hdlc.FindFrame(s.rx[:n])
	if err != nil {
		return nil, err
	}
	return hdlc.Decode(s.rx[start : start+length])
}
