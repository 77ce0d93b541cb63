package telemetry

import (
	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
	"github.com/NotCoffee418/dlms_power_meter/pkg/unitconv"
)

// Published values are rounded to this many decimals.
const resourceDecimals = 3

type resourceDef struct {
	id    uint16
	name  string
	unit  string
	value func(r *types.MeterReadings) float64
}

// kilo marks resources published in kW, kvar, kVA and their energies while
// the meter reports W, var, VA.
func (d resourceDef) kilo() bool {
	switch d.unit {
	case "kW", "kvar", "kVA", "kWh", "kvarh", "kVAh":
		return true
	}
	return false
}

var resourceDefs = []resourceDef{
	{ResVoltageR, "voltage_r", "V", func(r *types.MeterReadings) float64 { return r.VoltageR }},
	{ResCurrentR, "current_r", "A", func(r *types.MeterReadings) float64 { return r.CurrentR }},
	{ResActivePowerR, "active_power_r", "kW", func(r *types.MeterReadings) float64 { return r.ActivePowerR }},
	{ResReactivePowerR, "reactive_power_r", "kvar", func(r *types.MeterReadings) float64 { return r.ReactivePowerR }},
	{ResApparentPowerR, "apparent_power_r", "kVA", func(r *types.MeterReadings) float64 { return r.ApparentPowerR }},
	{ResPowerFactorR, "power_factor_r", "", func(r *types.MeterReadings) float64 { return r.PowerFactorR }},

	{ResVoltageS, "voltage_s", "V", func(r *types.MeterReadings) float64 { return r.VoltageS }},
	{ResCurrentS, "current_s", "A", func(r *types.MeterReadings) float64 { return r.CurrentS }},
	{ResActivePowerS, "active_power_s", "kW", func(r *types.MeterReadings) float64 { return r.ActivePowerS }},
	{ResReactivePowerS, "reactive_power_s", "kvar", func(r *types.MeterReadings) float64 { return r.ReactivePowerS }},
	{ResApparentPowerS, "apparent_power_s", "kVA", func(r *types.MeterReadings) float64 { return r.ApparentPowerS }},
	{ResPowerFactorS, "power_factor_s", "", func(r *types.MeterReadings) float64 { return r.PowerFactorS }},

	{ResVoltageT, "voltage_t", "V", func(r *types.MeterReadings) float64 { return r.VoltageT }},
	{ResCurrentT, "current_t", "A", func(r *types.MeterReadings) float64 { return r.CurrentT }},
	{ResActivePowerT, "active_power_t", "kW", func(r *types.MeterReadings) float64 { return r.ActivePowerT }},
	{ResReactivePowerT, "reactive_power_t", "kvar", func(r *types.MeterReadings) float64 { return r.ReactivePowerT }},
	{ResApparentPowerT, "apparent_power_t", "kVA", func(r *types.MeterReadings) float64 { return r.ApparentPowerT }},
	{ResPowerFactorT, "power_factor_t", "", func(r *types.MeterReadings) float64 { return r.PowerFactorT }},

	{ResTotalActivePower, "total_active_power", "kW", func(r *types.MeterReadings) float64 { return r.TotalActivePower }},
	{ResTotalReactivePower, "total_reactive_power", "kvar", func(r *types.MeterReadings) float64 { return r.TotalReactivePower }},
	{ResTotalApparentPower, "total_apparent_power", "kVA", func(r *types.MeterReadings) float64 { return r.TotalApparentPower }},
	{ResTotalPowerFactor, "total_power_factor", "", func(r *types.MeterReadings) float64 { return r.TotalPowerFactor }},
	{ResActiveEnergy, "active_energy", "kWh", func(r *types.MeterReadings) float64 { return r.ActiveEnergy }},
	{ResReactiveEnergy, "reactive_energy", "kvarh", func(r *types.MeterReadings) float64 { return r.ReactiveEnergy }},
	{ResApparentEnergy, "apparent_energy", "kVAh", func(r *types.MeterReadings) float64 { return r.ApparentEnergy }},
	{ResFrequency, "frequency", "Hz", func(r *types.MeterReadings) float64 { return r.Frequency }},
	{ResNeutralCurrent, "neutral_current", "A", func(r *types.MeterReadings) float64 { return r.NeutralCurrent }},
}

// Resources maps every value of a snapshot to its power meter resource,
// ordered by resource id. Power and energy are converted to kilo units.
func Resources(r *types.MeterReadings) []Resource {
	out := make([]Resource, 0, len(resourceDefs))
	for _, d := range resourceDefs {
		v := d.value(r)
		if d.kilo() {
			v = unitconv.WToKw(v)
		}
		out = append(out, Resource{ID: d.id, Name: d.name, Unit: d.unit, Value: unitconv.RoundTo(v, resourceDecimals)})
	}
	return out
}
