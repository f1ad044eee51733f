package job

import (
	"errors"
	"fmt"
)

// Variant temperature defaults. The range is the one the Gemini API accepts.
const (
	DefaultTemperatureBase = 0.4
	DefaultTemperatureStep = 0.05
	DefaultTemperatureMin  = 0.0
	DefaultTemperatureMax  = 2.0
)

// ErrInvalidVariant is returned when a VariantConfig has an empty range.
var ErrInvalidVariant = errors.New("invalid temperature range")

// VariantConfig derives a distinct temperature for each job index.
type VariantConfig struct {
	Base float64 `yaml:"base"`
	Step float64 `yaml:"step"`
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
}

// DefaultVariant returns base 0.4, step 0.05, clamped to [0, 2].
func DefaultVariant() VariantConfig {
	return VariantConfig{
		Base: DefaultTemperatureBase,
		Step: DefaultTemperatureStep,
		Min:  DefaultTemperatureMin,
		Max:  DefaultTemperatureMax,
	}
}

// Validate checks that the clamp range is non-empty.
func (v VariantConfig) Validate() error {
	if v.Min > v.Max {
		return fmt.Errorf("%w: min %.2f > max %.2f", ErrInvalidVariant, v.Min, v.Max)
	}
	return nil
}

// Temperature returns Base + index*Step clamped to [Min, Max].
func (v VariantConfig) Temperature(index int) float64 {
	t := v.Base + float64(index)*v.Step
	if t < v.Min {
		return v.Min
	}
	if t > v.Max {
		return v.Max
	}
	return t
}
