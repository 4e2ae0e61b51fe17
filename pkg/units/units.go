// Package units normalizes physical quantities to the canonical units the
// engine calculates in: kilograms for mass, liters for volume, kWh for energy.
package units

import "fmt"

// Canonical unit names.
const (
	Kilograms = "kg"
	Liters    = "l"
	KWh       = "kwh"
)

var massToKg = map[string]float64{
	"mg":     0.000001,
	"g":      0.001,
	"gram":   0.001,
	"grams":  0.001,
	"kg":     1,
	"t":      1000,
	"tonne":  1000,
	"tonnes": 1000,
}

var volumeToL = map[string]float64{
	"ml":     0.001,
	"cl":     0.01,
	"l":      1,
	"liter":  1,
	"liters": 1,
	"m3":     1000,
}

var energyToKWh = map[string]float64{
	"wh":  0.001,
	"kwh": 1,
	"mwh": 1000,
	"mj":  0.2777777777777778,
	"gj":  277.7777777777778,
}

// ToKilograms converts a mass quantity to kilograms.
func ToKilograms(amount float64, unit string) (float64, error) {
	if f, ok := massToKg[normalize(unit)]; ok {
		return amount * f, nil
	}
	return 0, fmt.Errorf("unknown mass unit %q", unit)
}

// ToLiters converts a volume quantity to liters.
func ToLiters(amount float64, unit string) (float64, error) {
	if f, ok := volumeToL[normalize(unit)]; ok {
		return amount * f, nil
	}
	return 0, fmt.Errorf("unknown volume unit %q", unit)
}

// ToKWh converts an energy quantity to kilowatt-hours.
func ToKWh(amount float64, unit string) (float64, error) {
	if f, ok := energyToKWh[normalize(unit)]; ok {
		return amount * f, nil
	}
	return 0, fmt.Errorf("unknown energy unit %q", unit)
}

// Convert normalizes a quantity of any supported dimension and reports the
// canonical unit it was converted to.
func Convert(amount float64, unit string) (float64, string, error) {
	n := normalize(unit)
	if f, ok := massToKg[n]; ok {
		return amount * f, Kilograms, nil
	}
	if f, ok := volumeToL[n]; ok {
		return amount * f, Liters, nil
	}
	if f, ok := energyToKWh[n]; ok {
		return amount * f, KWh, nil
	}
	return 0, "", fmt.Errorf("unknown unit %q", unit)
}

// KgToTonnes converts kilograms to tonnes. The engine keeps intermediate
// sums in kg and converts once at the result boundary.
func KgToTonnes(kg float64) float64 {
	return kg / 1000
}

func normalize(unit string) string {
	b := make([]byte, 0, len(unit))
	for i := 0; i < len(unit); i++ {
		c := unit[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c == ' ' {
			continue
		}
		b = append(b, c)
	}
	return string(b)
}
