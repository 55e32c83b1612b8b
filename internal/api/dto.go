package api

import (
	"math"

	"github.com/signalsfoundry/commodity-pathsim/internal/simulation"
	"github.com/signalsfoundry/commodity-pathsim/model"
)

// PathRequest carries one simulation request. GET binds it from the query
// string, POST from a JSON body. Pointers distinguish a missing value from 0.
type PathRequest struct {
	InitialSpot             *float64 `form:"initialSpot" json:"initialSpot" binding:"required"`
	InitialConvenienceYield *float64 `form:"initialConvenienceYield" json:"initialConvenienceYield" binding:"required"`

	Mu                    *float64 `form:"mu" json:"mu" binding:"required"`
	SigmaSpot             *float64 `form:"sigmaSpot" json:"sigmaSpot" binding:"required"`
	Kappa                 *float64 `form:"kappa" json:"kappa" binding:"required"`
	Alpha                 *float64 `form:"alpha" json:"alpha" binding:"required"`
	SigmaConvenienceYield *float64 `form:"sigmaConvenienceYield" json:"sigmaConvenienceYield" binding:"required"`
	Interest              *float64 `form:"interest" json:"interest" binding:"required"`
	Rho                   *float64 `form:"rho" json:"rho" binding:"required"`
	Lambda                *float64 `form:"lambda" json:"lambda" binding:"required"`

	// IncludeTermStructure defaults to true when omitted.
	IncludeTermStructure *bool `form:"includeTermStructure" json:"includeTermStructure"`
}

// Inputs converts a bound request. Binding guarantees the required fields.
func (r PathRequest) Inputs() simulation.Inputs {
	include := true
	if r.IncludeTermStructure != nil {
		include = *r.IncludeTermStructure
	}
	return simulation.Inputs{
		InitialSpot:             *r.InitialSpot,
		InitialConvenienceYield: *r.InitialConvenienceYield,
		Parameters: model.ModelParameters{
			Mu:                    *r.Mu,
			SigmaSpot:             *r.SigmaSpot,
			Kappa:                 *r.Kappa,
			Alpha:                 *r.Alpha,
			SigmaConvenienceYield: *r.SigmaConvenienceYield,
			Interest:              *r.Interest,
			Rho:                   *r.Rho,
			Lambda:                *r.Lambda,
		},
		IncludeTermStructure: include,
	}
}

// PathResponse is the JSON form of a simulated path. Non-finite numbers are
// rendered as null.
type PathResponse struct {
	TaskID string         `json:"taskId,omitempty"`
	Steps  []StepResponse `json:"steps"`
}

type StepResponse struct {
	Time             int             `json:"time"`
	SpotPrice        *float64        `json:"spotPrice"`
	ConvenienceYield *float64        `json:"convenienceYield"`
	ForwardQuotes    []QuoteResponse `json:"forwardQuotes"`
}

type QuoteResponse struct {
	TimeToMaturity *float64 `json:"timeToMaturity"`
	FuturesPrice   *float64 `json:"futuresPrice"`
}

// NewPathResponse flattens p in ascending time order.
func NewPathResponse(taskID string, p *model.SimulatedPath) PathResponse {
	resp := PathResponse{TaskID: taskID, Steps: []StepResponse{}}
	if p == nil {
		return resp
	}
	for _, s := range p.Steps() {
		quotes := make([]QuoteResponse, 0, len(s.ForwardQuotes))
		for _, q := range s.ForwardQuotes {
			quotes = append(quotes, QuoteResponse{
				TimeToMaturity: finite(q.TimeToMaturity),
				FuturesPrice:   finite(q.FuturesPrice),
			})
		}
		resp.Steps = append(resp.Steps, StepResponse{
			Time:             s.Time,
			SpotPrice:        finite(s.SpotPrice),
			ConvenienceYield: finite(s.ConvenienceYield),
			ForwardQuotes:    quotes,
		})
	}
	return resp
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
