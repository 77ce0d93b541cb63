// Package unitconv converts between the base units the meter registers
// deliver (W, var, VA and their hourly energies) and the kilo units used by
// the power meter resources.
package unitconv

import "math"

func WToKw(w float64) float64 {
	return w / 1000
}

func KwToW(kw float64) float64 {
	return kw * 1000
}

func WhToKwh(wh float64) float64 {
	return wh / 1000
}

// RoundTo rounds v to the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
