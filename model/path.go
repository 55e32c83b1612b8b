package model

import (
	"maps"
	"slices"
)

// ForwardQuote is one observed point of the term structure.
type ForwardQuote struct {
	TimeToMaturity float64
	FuturesPrice   float64
}

// StepEntry holds the state of the simulated commodity at one time step.
type StepEntry struct {
	SpotPrice        float64
	ConvenienceYield float64
	ForwardQuotes    []ForwardQuote // may be empty
}

// HasQuotes reports whether the entry carries term-structure data.
func (e StepEntry) HasQuotes() bool { return len(e.ForwardQuotes) > 0 }

// Equal compares two entries field by field.
func (e StepEntry) Equal(o StepEntry) bool {
	return e.SpotPrice == o.SpotPrice &&
		e.ConvenienceYield == o.ConvenienceYield &&
		slices.Equal(e.ForwardQuotes, o.ForwardQuotes)
}

// TimedStep pairs a StepEntry with its time step.
type TimedStep struct {
	Time int
	StepEntry
}

// SimulatedPath maps integer time steps to StepEntries. Iteration order is
// ascending time. It is built with Put and treated as read-only once handed
// to downstream consumers.
type SimulatedPath struct {
	steps map[int]StepEntry

	// quoteCounts only holds keys whose current entry has quotes.
	quoteCounts map[int]int
}

// NewSimulatedPath constructs an empty path.
func NewSimulatedPath() *SimulatedPath {
	return &SimulatedPath{
		steps:       make(map[int]StepEntry),
		quoteCounts: make(map[int]int),
	}
}

// Put records the entry for time, replacing any previous entry for the same
// key. A Put without quotes retracts the quote count previously recorded for
// that key.
func (p *SimulatedPath) Put(time int, spotPrice, convenienceYield float64, quotes []ForwardQuote) {
	entry := StepEntry{
		SpotPrice:        spotPrice,
		ConvenienceYield: convenienceYield,
		ForwardQuotes:    append([]ForwardQuote(nil), quotes...),
	}
	if entry.HasQuotes() {
		p.quoteCounts[time] = len(entry.ForwardQuotes)
	} else {
		delete(p.quoteCounts, time)
	}
	p.steps[time] = entry
}

// Len returns the number of distinct time steps.
func (p *SimulatedPath) Len() int {
	if p == nil {
		return 0
	}
	return len(p.steps)
}

// Times returns the time steps in ascending order.
func (p *SimulatedPath) Times() []int {
	if p == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(p.steps))
}

// Step looks up the entry for time.
func (p *SimulatedPath) Step(time int) (StepEntry, bool) {
	if p == nil {
		return StepEntry{}, false
	}
	e, ok := p.steps[time]
	return e, ok
}

// Steps returns all entries in ascending time order.
func (p *SimulatedPath) Steps() []TimedStep {
	times := p.Times()
	out := make([]TimedStep, 0, len(times))
	for _, t := range times {
		out = append(out, TimedStep{Time: t, StepEntry: p.steps[t]})
	}
	return out
}

// HasQuotes reports whether any time step currently carries quotes.
func (p *SimulatedPath) HasQuotes() bool {
	return p != nil && len(p.quoteCounts) > 0
}

// QuoteCount returns the tracked quote count for time, 0 when none is tracked.
func (p *SimulatedPath) QuoteCount(time int) int {
	if p == nil {
		return 0
	}
	return p.quoteCounts[time]
}

// MaxQuoteCount returns the longest term structure across all time steps.
func (p *SimulatedPath) MaxQuoteCount() int {
	if p == nil {
		return 0
	}
	longest := 0
	for _, n := range p.quoteCounts {
		if n > longest {
			longest = n
		}
	}
	return longest
}

// Equal reports whether both paths hold the same entries. Book-keeping is
// derived from the entries and is not compared.
func (p *SimulatedPath) Equal(o *SimulatedPath) bool {
	if p.Len() != o.Len() {
		return false
	}
	if p == nil || o == nil {
		return true
	}
	for t, e := range p.steps {
		oe, ok := o.steps[t]
		if !ok || !e.Equal(oe) {
			return false
		}
	}
	return true
}
