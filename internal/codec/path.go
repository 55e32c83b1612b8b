// Package codec converts between the engine's dense matrix wire format and
// the structured model types.
//
// Path matrix layout, one column per time step:
//
//	row 0        time step, non-negative (truncated towards -inf on decode)
//	row 1        spot price
//	row 2        convenience yield
//	rows 3+2k    time to maturity of quote slot k
//	rows 4+2k    futures price of quote slot k
//
// Unused quote slots are NaN in both cells.
package codec

import (
	"fmt"
	"math"

	"github.com/signalsfoundry/commodity-pathsim/model"
)

const (
	TimelineRow         = 0
	SpotPriceRow        = 1
	ConvenienceYieldRow = 2
	FirstQuoteRow       = 3

	// BaseRows is the number of rows present regardless of quotes.
	BaseRows = 3
)

// DecodePath validates m and builds the SimulatedPath it describes. Nothing
// is built unless the whole matrix passes validation.
func DecodePath(m model.Matrix) (*model.SimulatedPath, error) {
	if err := validatePathMatrix(m); err != nil {
		return nil, err
	}

	path := model.NewSimulatedPath()
	for j := 0; j < m.Cols(); j++ {
		time := int(math.Floor(m[TimelineRow][j]))

		var quotes []model.ForwardQuote
		for i := FirstQuoteRow; i+1 < len(m); i += 2 {
			ttm, price := m[i][j], m[i+1][j]
			// A half-filled pair is not a quote.
			if math.IsNaN(ttm) || math.IsNaN(price) {
				continue
			}
			quotes = append(quotes, model.ForwardQuote{TimeToMaturity: ttm, FuturesPrice: price})
		}

		path.Put(time, m[SpotPriceRow][j], m[ConvenienceYieldRow][j], quotes)
	}
	return path, nil
}

// EncodePath lays p out as a path matrix. It never fails; an empty or nil
// path yields a 3×0 matrix.
func EncodePath(p *model.SimulatedPath) model.Matrix {
	maxQuotes := p.MaxQuoteCount()
	steps := p.Steps()

	m := model.NewMatrix(BaseRows+2*maxQuotes, len(steps))
	for j, step := range steps {
		m[TimelineRow][j] = float64(step.Time)
		m[SpotPriceRow][j] = step.SpotPrice
		m[ConvenienceYieldRow][j] = step.ConvenienceYield

		for k := 0; k < maxQuotes; k++ {
			row := FirstQuoteRow + 2*k
			ttm, price := math.NaN(), math.NaN()
			if k < len(step.ForwardQuotes) {
				ttm = step.ForwardQuotes[k].TimeToMaturity
				price = step.ForwardQuotes[k].FuturesPrice
			}
			m[row][j] = ttm
			m[row+1][j] = price
		}
	}
	return m
}

func validatePathMatrix(m model.Matrix) error {
	if m == nil {
		return &ShapeError{Reason: "expected non-nil matrix"}
	}
	rows, cols := m.Rows(), m.Cols()
	if rows < BaseRows {
		return &ShapeError{Reason: "need at least the timeline, spot price and convenience yield rows", Rows: rows, Cols: cols}
	}
	if rows%2 == 0 {
		return &ShapeError{Reason: fmt.Sprintf("expected an odd number of rows, got %d", rows), Rows: rows, Cols: cols}
	}
	if !m.Rectangular() {
		return &ShapeError{Reason: "rows of unequal length", Rows: rows, Cols: cols}
	}
	for j, v := range m[TimelineRow] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &ShapeError{Reason: fmt.Sprintf("non-finite time step in column %d", j), Rows: rows, Cols: cols}
		}
		// float64(math.MaxInt) rounds up to 2^63, which int cannot hold.
		if t := math.Floor(v); t < 0 || t >= float64(math.MaxInt) {
			return &ShapeError{Reason: fmt.Sprintf("time step %v in column %d is not a non-negative int", v, j), Rows: rows, Cols: cols}
		}
	}
	return nil
}
