package simulation

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholders substituted into Script commands.
const (
	PlaceholderSpot             = "{spot}"
	PlaceholderConvenienceYield = "{cy}"
	PlaceholderTermStructure    = "{term}"
)

// Script is the engine command set driven by a task. The engine owns the
// model code and its constants (horizon, step size, contract count); the
// script only names them.
type Script struct {
	Reseed            string   `yaml:"reseed"`
	LoadConstants     string   `yaml:"load_constants"`
	ParameterVariable string   `yaml:"parameter_variable"`
	PrepareParameters []string `yaml:"prepare_parameters"`
	// GeneratePaths may use {spot} and {cy}.
	GeneratePaths string `yaml:"generate_paths"`
	// PostProcess may use {term}.
	PostProcess    string `yaml:"post_process"`
	ResultVariable string `yaml:"result_variable"`
}

// DefaultScript returns the commands understood by the stock engine scripts.
func DefaultScript() Script {
	return Script{
		Reseed:            "rng('shuffle')",
		LoadConstants:     "eval('init_consts')",
		ParameterVariable: "parray",
		PrepareParameters: []string{
			"carray = num2cell(parray);",
			"pstruct = paramstruct(carray{:});",
		},
		GeneratePaths:  "[dates price cy ttm] = feval('gensynthdata',{spot}, {cy},pstruct, synth_years, dt, ncontracts, false);",
		PostProcess:    "data = feval('price2array', dates, price, cy, ttm,{term} );",
		ResultVariable: "data",
	}
}

// ApplyDefaults fills empty fields from DefaultScript.
func (s *Script) ApplyDefaults() {
	d := DefaultScript()
	if s.Reseed == "" {
		s.Reseed = d.Reseed
	}
	if s.LoadConstants == "" {
		s.LoadConstants = d.LoadConstants
	}
	if s.ParameterVariable == "" {
		s.ParameterVariable = d.ParameterVariable
	}
	if s.PrepareParameters == nil {
		s.PrepareParameters = d.PrepareParameters
	}
	if s.GeneratePaths == "" {
		s.GeneratePaths = d.GeneratePaths
	}
	if s.PostProcess == "" {
		s.PostProcess = d.PostProcess
	}
	if s.ResultVariable == "" {
		s.ResultVariable = d.ResultVariable
	}
}

// Validate rejects scripts with empty commands or variable names.
func (s Script) Validate() error {
	required := []struct{ name, value string }{
		{"reseed", s.Reseed},
		{"load_constants", s.LoadConstants},
		{"parameter_variable", s.ParameterVariable},
		{"generate_paths", s.GeneratePaths},
		{"post_process", s.PostProcess},
		{"result_variable", s.ResultVariable},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("script: %s must not be empty", f.name)
		}
	}
	for i, cmd := range s.PrepareParameters {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("script: prepare_parameters[%d] must not be empty", i)
		}
	}
	return nil
}

// RenderGeneratePaths substitutes the initial conditions. Values are
// formatted with the shortest representation that round-trips.
func (s Script) RenderGeneratePaths(spot, convenienceYield float64) string {
	return strings.NewReplacer(
		PlaceholderSpot, formatFloat(spot),
		PlaceholderConvenienceYield, formatFloat(convenienceYield),
	).Replace(s.GeneratePaths)
}

// RenderPostProcess substitutes the term-structure flag.
func (s Script) RenderPostProcess(includeTermStructure bool) string {
	return strings.ReplaceAll(s.PostProcess, PlaceholderTermStructure, strconv.FormatBool(includeTermStructure))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
