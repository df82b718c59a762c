package eos

import (
	"fmt"
	"math"
)

// cgs constants
const (
	boltzmann     = 1.380649e-16  // erg/K
	hydrogenMass  = 1.6735575e-24 // g
	radiationA    = 7.5657e-15    // erg cm^-3 K^-4
	degenerateNR  = 1.0036e13     // P = K (ρ/μₑ)^(5/3)
	degenerateUR  = 1.2435e15     // P = K (ρ/μₑ)^(4/3)
	minDeparture  = -1.0
	defaultMargin = 1.0
)

// Ideal compares ideal-gas, radiation and degenerate-electron pressure.
//
//	P_gas = ρkT / (μ m_H)
//	P_rad = (1+η) aT⁴/3
//	P_deg = (P_nr⁻² + P_ur⁻²)^(-1/2)
//
// A term dominates when it exceeds the runner-up by margin (strictly greater
// when margin <= 1).
type Ideal struct {
	margin float64
}

func NewIdeal() *Ideal {
	return &Ideal{margin: defaultMargin}
}

// NewIdealWithMargin widens the band classified as mixed.
func NewIdealWithMargin(margin float64) *Ideal {
	return &Ideal{margin: margin}
}

func (m *Ideal) Evaluate(in Input) Result {
	mu := in.Composition.MeanMolecularWeight()
	muE := in.Composition.ElectronMolecularWeight()

	t, rho := in.TemperatureK, in.DensityGPerCm3

	eta := math.Max(in.RadiationDepartureEta, minDeparture)

	res := Result{
		Gas:       rho * boltzmann * t / (mu * hydrogenMass),
		Radiation: (1 + eta) * radiationA * t * t * t * t / 3,
	}

	ne := rho / muE
	nr := degenerateNR * math.Pow(ne, 5.0/3.0)
	ur := degenerateUR * math.Pow(ne, 4.0/3.0)
	if nr > 0 && ur > 0 {
		res.Degeneracy = 1 / math.Sqrt(1/(nr*nr)+1/(ur*ur))
	}

	res.Dominant = m.dominant(res)
	return res
}

func (m *Ideal) dominant(r Result) Channel {
	terms := [3]struct {
		ch Channel
		p  float64
	}{
		{Gas, r.Gas},
		{Radiation, r.Radiation},
		{Degeneracy, r.Degeneracy},
	}

	best, second := -1, -1
	for i, t := range terms {
		if math.IsNaN(t.p) || math.IsInf(t.p, 0) {
			return Mixed
		}
		if best < 0 || t.p > terms[best].p {
			best, second = i, best
		} else if second < 0 || t.p > terms[second].p {
			second = i
		}
	}

	top, next := terms[best].p, terms[second].p
	if m.margin <= 1 {
		if top > next {
			return terms[best].ch
		}
		return Mixed
	}
	if top >= m.margin*next && top > next {
		return terms[best].ch
	}
	return Mixed
}

// GetParams implements Configurable
func (m *Ideal) GetParams() map[string]float64 {
	return map[string]float64{
		"margin": m.margin,
	}
}

// SetParam implements Configurable
func (m *Ideal) SetParam(name string, value float64) error {
	switch name {
	case "margin":
		if value <= 0 || math.IsNaN(value) {
			return fmt.Errorf("eos: margin must be positive, got %v", value)
		}
		m.margin = value
		return nil
	}
	return fmt.Errorf("eos: unknown parameter %q", name)
}
