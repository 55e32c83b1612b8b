package codec

import (
	"github.com/signalsfoundry/commodity-pathsim/model"
)

// EncodeParameters returns the 1×8 parameter matrix in engine order.
func EncodeParameters(p model.ModelParameters) model.Matrix {
	v := p.Vector()
	return model.Matrix{v[:]}
}

// DecodeParameters accepts exactly a 1×8 matrix.
func DecodeParameters(m model.Matrix) (model.ModelParameters, error) {
	if m.Rows() != 1 || len(m[0]) != model.ParameterCount {
		return model.ModelParameters{}, &ShapeError{
			Reason: "expected a 1x8 parameter matrix",
			Rows:   m.Rows(),
			Cols:   m.Cols(),
		}
	}
	var v [model.ParameterCount]float64
	copy(v[:], m[0])
	return model.ParametersFromVector(v), nil
}
