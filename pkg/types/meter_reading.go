package types

import (
	"encoding/json"
	"time"
)

// MeterReadings is one poll cycle worth of values in engineering units.
// Entries the meter did not deliver stay at zero.
type MeterReadings struct {
	Timestamp time.Time `json:"timestamp"`

	// Per phase voltage (V)
	VoltageR float64 `json:"voltage_r"`
	VoltageS float64 `json:"voltage_s"`
	VoltageT float64 `json:"voltage_t"`

	// Per phase current (A)
	CurrentR float64 `json:"current_r"`
	CurrentS float64 `json:"current_s"`
	CurrentT float64 `json:"current_t"`

	// Per phase active power (kW)
	ActivePowerR float64 `json:"active_power_r"`
	ActivePowerS float64 `json:"active_power_s"`
	ActivePowerT float64 `json:"active_power_t"`

	// Per phase reactive power (kvar)
	ReactivePowerR float64 `json:"reactive_power_r"`
	ReactivePowerS float64 `json:"reactive_power_s"`
	ReactivePowerT float64 `json:"reactive_power_t"`

	// Per phase apparent power (kVA)
	ApparentPowerR float64 `json:"apparent_power_r"`
	ApparentPowerS float64 `json:"apparent_power_s"`
	ApparentPowerT float64 `json:"apparent_power_t"`

	PowerFactorR float64 `json:"power_factor_r"`
	PowerFactorS float64 `json:"power_factor_s"`
	PowerFactorT float64 `json:"power_factor_t"`

	// Three phase totals
	TotalActivePower   float64 `json:"total_active_power"`
	TotalReactivePower float64 `json:"total_reactive_power"`
	TotalApparentPower float64 `json:"total_apparent_power"`
	TotalPowerFactor   float64 `json:"total_power_factor"`

	// Energy registers (kWh, kvarh, kVAh)
	ActiveEnergy   float64 `json:"active_energy"`
	ReactiveEnergy float64 `json:"reactive_energy"`
	ApparentEnergy float64 `json:"apparent_energy"`

	Frequency      float64 `json:"frequency"`
	NeutralCurrent float64 `json:"neutral_current"`

	// Valid is set when at least one register was read.
	Valid      bool `json:"valid"`
	ReadCount  int  `json:"read_count"`
	ErrorCount int  `json:"error_count"`
}

func (r *MeterReadings) ToJsonBytes() []byte {
	b, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	return b
}

func MeterReadingsFromJsonBytes(data []byte) *MeterReadings {
	var r MeterReadings
	if err := json.Unmarshal(data, &r); err != nil {
		return nil
	}
	return &r
}
