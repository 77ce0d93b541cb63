package telemetry

import (
	"sync"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
	"github.com/NotCoffee418/dlms_power_meter/pkg/unitconv"
)

// Store holds the current value of every resource and forwards changes to
// its observers.
type Store struct {
	mu        sync.Mutex
	values    map[uint16]Resource
	observers []Observer
	info      DeviceInfo
}

func NewStore(info DeviceInfo) *Store {
	return &Store{values: make(map[uint16]Resource), info: info}
}

// AddObserver registers o for all future pushes.
func (s *Store) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Push records a snapshot. Invalid snapshots are ignored so stale values stay
// visible. Observers are called once with every resource whose value changed;
// the changed resources are returned as well.
func (s *Store) Push(r *types.MeterReadings) []Resource {
	if r == nil || !r.Valid {
		_lg.Debug("Ignoring invalid snapshot")
		return nil
	}

	s.mu.Lock()
	var changed []Resource
	for _, res := range Resources(r) {
		prev, seen := s.values[res.ID]
		if seen && prev.Value == res.Value {
			continue
		}
		s.values[res.ID] = res
		changed = append(changed, res)
	}
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	for _, o := range observers {
		if err := o.Notify(ts, changed); err != nil {
			_lg.Warnf("Observer failed: %v", err)
		}
	}

	_lg.Infof("3P: R=%.1fV/%.1fA  S=%.1fV/%.1fA  T=%.1fV/%.1fA  P=%.2fkW  E=%.3fkWh  f=%.1fHz",
		r.VoltageR, r.CurrentR, r.VoltageS, r.CurrentS, r.VoltageT, r.CurrentT,
		unitconv.WToKw(r.TotalActivePower), unitconv.WhToKwh(r.ActiveEnergy), r.Frequency)
	return changed
}

// Value returns the current value of resource id.
func (s *Store) Value(id uint16) (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.values[id]
	return res, ok
}

func (s *Store) DeviceInfo() DeviceInfo {
	return s.info
}
