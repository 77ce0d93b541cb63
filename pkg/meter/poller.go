package meter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
)

// Status summarises the poller for diagnostics. State is the furthest state
// the last cycle reached before it released the meter.
type Status struct {
	State               State     `json:"state"`
	Polls               int       `json:"polls"`
	LastPoll            time.Time `json:"last_poll"`
	LastError           string    `json:"last_error,omitempty"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Skipped             []string  `json:"skipped_obis"`
}

// Poller runs Session.Poll on a fixed interval and keeps the last valid
// snapshot. A failed cycle leaves the previous snapshot in place.
type Poller struct {
	session  *Session
	interval time.Duration

	mu     sync.RWMutex
	latest *types.MeterReadings
	status Status
}

func NewPoller(session *Session, interval time.Duration) (*Poller, error) {
	if session == nil {
		return nil, errors.New("poller: session required")
	}
	if interval <= 0 {
		return nil, errors.New("poller: interval must be > 0")
	}
	return &Poller{session: session, interval: interval}, nil
}

// PollOnce performs exactly one poll cycle.
func (p *Poller) PollOnce() (*types.MeterReadings, error) {
	readings, err := p.session.Poll()

	skipped := p.session.SkippedEntries()
	names := make([]string, 0, len(skipped))
	for _, e := range skipped {
		names = append(names, e.Obis.String())
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Polls++
	p.status.LastPoll = time.Now()
	p.status.State = p.session.LastPollState()
	p.status.Skipped = names
	if err != nil {
		p.status.LastError = err.Error()
		p.status.ConsecutiveFailures++
	} else {
		p.status.LastError = ""
		p.status.ConsecutiveFailures = 0
	}

	if readings != nil && readings.Valid {
		p.latest = readings
	}
	return readings, err
}

// Run polls immediately and then on every tick until ctx is done. handle is
// called with every valid snapshot. Cycles never overlap.
func (p *Poller) Run(ctx context.Context, handle func(*types.MeterReadings)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		readings, err := p.PollOnce()
		if err != nil {
			_lg.Warnf("Poll failed (%d in a row): %v", p.Status().ConsecutiveFailures, err)
		}
		if readings != nil && readings.Valid && handle != nil {
			handle(readings)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Latest returns the most recent valid snapshot or nil.
func (p *Poller) Latest() *types.MeterReadings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

func (p *Poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.status
	s.Skipped = append([]string(nil), p.status.Skipped...)
	return s
}
