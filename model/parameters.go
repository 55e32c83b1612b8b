package model

import (
	"fmt"
	"math"
)

// ParameterCount is the length of the engine's parameter vector.
const ParameterCount = 8

// ModelParameters are the parameters of the two-factor commodity model under
// the real-world measure.
//
// Spot price SDE: Mu, SigmaSpot. Convenience yield SDE: Kappa, Alpha,
// SigmaConvenienceYield. Interest is the risk-free rate, Rho the correlation
// of the two Brownian increments and Lambda the market price of convenience
// yield risk.
type ModelParameters struct {
	Mu                    float64 `json:"mu"`
	SigmaSpot             float64 `json:"sigmaSpot"`
	Kappa                 float64 `json:"kappa"`
	Alpha                 float64 `json:"alpha"`
	SigmaConvenienceYield float64 `json:"sigmaConvenienceYield"`
	Interest              float64 `json:"interest"`
	Rho                   float64 `json:"rho"`
	Lambda                float64 `json:"lambda"`
}

// ParametersFromVector builds parameters from the engine's ordered vector.
func ParametersFromVector(v [ParameterCount]float64) ModelParameters {
	return ModelParameters{
		Mu:                    v[0],
		SigmaSpot:             v[1],
		Kappa:                 v[2],
		Alpha:                 v[3],
		SigmaConvenienceYield: v[4],
		Interest:              v[5],
		Rho:                   v[6],
		Lambda:                v[7],
	}
}

// Vector returns the parameters in engine order.
func (p ModelParameters) Vector() [ParameterCount]float64 {
	return [ParameterCount]float64{
		p.Mu, p.SigmaSpot, p.Kappa, p.Alpha,
		p.SigmaConvenienceYield, p.Interest, p.Rho, p.Lambda,
	}
}

// Key returns the bit patterns of the 8 fields. Two parameter sets are equal
// exactly when their keys are equal, so Key is usable as a map key.
func (p ModelParameters) Key() [ParameterCount]uint64 {
	var k [ParameterCount]uint64
	for i, v := range p.Vector() {
		k[i] = math.Float64bits(v)
	}
	return k
}

// Equal is bit-exact: a NaN equals an identical NaN and +0 differs from -0.
func (p ModelParameters) Equal(o ModelParameters) bool {
	return p.Key() == o.Key()
}

func (p ModelParameters) String() string {
	return fmt.Sprintf("ModelParameters{mu=%g, sigmaSpot=%g, kappa=%g, alpha=%g, sigmaCY=%g, interest=%g, rho=%g, lambda=%g}",
		p.Mu, p.SigmaSpot, p.Kappa, p.Alpha, p.SigmaConvenienceYield, p.Interest, p.Rho, p.Lambda)
}
