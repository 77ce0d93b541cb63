package meter

import (
	"github.com/NotCoffee418/dlms_power_meter/pkg/cosem"
	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
)

// ObisMapping binds a register on the meter to a field of MeterReadings.
type ObisMapping struct {
	Obis    cosem.ObisCode
	ClassID uint16
	Name    string
	Field   func(r *types.MeterReadings) *float64
}

func register(c, d byte, name string, field func(r *types.MeterReadings) *float64) ObisMapping {
	return ObisMapping{
		Obis:    cosem.NewObis(1, 1, c, d, 0, 255),
		ClassID: cosem.ClassRegister,
		Name:    name,
		Field:   field,
	}
}

// DefaultObisTable lists the instantaneous and energy registers of a three
// phase Microstar meter, in read order.
func DefaultObisTable() []ObisMapping {
	return []ObisMapping{
		// Phase R
		register(32, 7, "voltage_r", func(r *types.MeterReadings) *float64 { return &r.VoltageR }),
		register(31, 7, "current_r", func(r *types.MeterReadings) *float64 { return &r.CurrentR }),
		register(21, 7, "active_power_r", func(r *types.MeterReadings) *float64 { return &r.ActivePowerR }),
		register(23, 7, "reactive_power_r", func(r *types.MeterReadings) *float64 { return &r.ReactivePowerR }),
		register(29, 7, "apparent_power_r", func(r *types.MeterReadings) *float64 { return &r.ApparentPowerR }),
		register(33, 7, "power_factor_r", func(r *types.MeterReadings) *float64 { return &r.PowerFactorR }),

		// Phase S
		register(52, 7, "voltage_s", func(r *types.MeterReadings) *float64 { return &r.VoltageS }),
		register(51, 7, "current_s", func(r *types.MeterReadings) *float64 { return &r.CurrentS }),
		register(41, 7, "active_power_s", func(r *types.MeterReadings) *float64 { return &r.ActivePowerS }),
		register(43, 7, "reactive_power_s", func(r *types.MeterReadings) *float64 { return &r.ReactivePowerS }),
		register(49, 7, "apparent_power_s", func(r *types.MeterReadings) *float64 { return &r.ApparentPowerS }),
		register(53, 7, "power_factor_s", func(r *types.MeterReadings) *float64 { return &r.PowerFactorS }),

		// Phase T
		register(72, 7, "voltage_t", func(r *types.MeterReadings) *float64 { return &r.VoltageT }),
		register(71, 7, "current_t", func(r *types.MeterReadings) *float64 { return &r.CurrentT }),
		register(61, 7, "active_power_t", func(r *types.MeterReadings) *float64 { return &r.ActivePowerT }),
		register(63, 7, "reactive_power_t", func(r *types.MeterReadings) *float64 { return &r.ReactivePowerT }),
		register(69, 7, "apparent_power_t", func(r *types.MeterReadings) *float64 { return &r.ApparentPowerT }),
		register(73, 7, "power_factor_t", func(r *types.MeterReadings) *float64 { return &r.PowerFactorT }),

		// Totals
		register(1, 7, "total_active_power", func(r *types.MeterReadings) *float64 { return &r.TotalActivePower }),
		register(3, 7, "total_reactive_power", func(r *types.MeterReadings) *float64 { return &r.TotalReactivePower }),
		register(9, 7, "total_apparent_power", func(r *types.MeterReadings) *float64 { return &r.TotalApparentPower }),
		register(13, 7, "total_power_factor", func(r *types.MeterReadings) *float64 { return &r.TotalPowerFactor }),

		// Energy
		register(1, 8, "active_energy", func(r *types.MeterReadings) *float64 { return &r.ActiveEnergy }),
		register(3, 8, "reactive_energy", func(r *types.MeterReadings) *float64 { return &r.ReactiveEnergy }),
		register(9, 8, "apparent_energy", func(r *types.MeterReadings) *float64 { return &r.ApparentEnergy }),

		register(14, 7, "frequency", func(r *types.MeterReadings) *float64 { return &r.Frequency }),
		register(91, 7, "neutral_current", func(r *types.MeterReadings) *float64 { return &r.NeutralCurrent }),
	}
}
