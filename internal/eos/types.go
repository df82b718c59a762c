package eos

import "math"

// Channel names the pressure term that dominates at one (T, ρ) point.
// Evaluators may return values outside the named set.
type Channel string

const (
	Gas        Channel = "gas"
	Radiation  Channel = "radiation"
	Degeneracy Channel = "degeneracy"
	Mixed      Channel = "mixed"
)

// Composition holds mass fractions of hydrogen (X), helium (Y) and metals (Z).
// The fractions are not required to sum to one.
type Composition struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// MeanMolecularWeight returns μ for a fully ionized mixture.
func (c Composition) MeanMolecularWeight() float64 {
	return 1 / (2*c.X + 0.75*c.Y + 0.5*c.Z)
}

// ElectronMolecularWeight returns μₑ, the mass per free electron in units of m_H.
func (c Composition) ElectronMolecularWeight() float64 {
	return 2 / (1 + c.X)
}

func (c Composition) IsValid() bool {
	for _, v := range []float64{c.X, c.Y, c.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

type Input struct {
	TemperatureK          float64
	DensityGPerCm3        float64
	Composition           Composition
	RadiationDepartureEta float64
}

// Result carries the classification and, when the model provides them, the
// individual pressure terms in dyn/cm².
type Result struct {
	Dominant   Channel
	Gas        float64
	Radiation  float64
	Degeneracy float64
}

type Evaluator interface {
	Evaluate(in Input) Result
}

// EvaluatorFunc adapts a plain function to the Evaluator interface.
type EvaluatorFunc func(in Input) Result

func (f EvaluatorFunc) Evaluate(in Input) Result { return f(in) }

// Configurable is implemented by models with tunable parameters.
type Configurable interface {
	GetParams() map[string]float64
	SetParam(name string, value float64) error
}
