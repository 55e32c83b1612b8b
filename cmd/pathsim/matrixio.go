package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/signalsfoundry/commodity-pathsim/internal/api"
	"github.com/signalsfoundry/commodity-pathsim/model"
)

// Matrices travel as JSON arrays of rows; null stands for NaN.

func readMatrix(r io.Reader) (model.Matrix, error) {
	var rows [][]*float64
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("parse matrix: %w", err)
	}
	if rows == nil {
		return nil, nil
	}
	m := make(model.Matrix, len(rows))
	for i, row := range rows {
		m[i] = make([]float64, len(row))
		for j, cell := range row {
			m[i][j] = valueOrNaN(cell)
		}
	}
	return m, nil
}

func writeMatrix(w io.Writer, m model.Matrix) error {
	rows := make([][]*float64, len(m))
	for i, row := range m {
		rows[i] = make([]*float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				rows[i][j] = &v
			}
		}
	}
	return writeJSON(w, rows)
}

// readPath parses the JSON form produced by the HTTP API and decode.
func readPath(r io.Reader) (*model.SimulatedPath, error) {
	var resp api.PathResponse
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("parse path: %w", err)
	}
	p := model.NewSimulatedPath()
	for _, s := range resp.Steps {
		quotes := make([]model.ForwardQuote, 0, len(s.ForwardQuotes))
		for _, q := range s.ForwardQuotes {
			quotes = append(quotes, model.ForwardQuote{
				TimeToMaturity: valueOrNaN(q.TimeToMaturity),
				FuturesPrice:   valueOrNaN(q.FuturesPrice),
			})
		}
		p.Put(s.Time, valueOrNaN(s.SpotPrice), valueOrNaN(s.ConvenienceYield), quotes)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func valueOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// openInput returns stdin for "-" and the named file otherwise.
func openInput(name string) (io.ReadCloser, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(name)
}
