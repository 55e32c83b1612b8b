package codec

import (
	"errors"
	"math"
	"testing"

	"github.com/signalsfoundry/commodity-pathsim/model"
)

var nan = math.NaN()

func mustDecode(t *testing.T, m model.Matrix) *model.SimulatedPath {
	t.Helper()
	p, err := DecodePath(m)
	if err != nil {
		t.Fatalf("DecodePath: %v", err)
	}
	return p
}

func assertShapeError(t *testing.T, m model.Matrix) {
	t.Helper()
	p, err := DecodePath(m)
	if err == nil {
		t.Fatalf("DecodePath(%v) succeeded, want ShapeError", m)
	}
	if p != nil {
		t.Fatalf("DecodePath returned a partial path alongside %v", err)
	}
	var shapeErr *ShapeError
	if !errors.As(err, &shapeErr) || !errors.Is(err, ErrShape) {
		t.Fatalf("DecodePath error = %v, want *ShapeError", err)
	}
}

func TestDecodePathBaseRowsOnly(t *testing.T) {
	p := mustDecode(t, model.Matrix{
		{1, 2, 3},
		{8, 8.5, 9},
		{0.1, 0.2, 0},
	})

	want := model.NewSimulatedPath()
	want.Put(1, 8, 0.1, nil)
	want.Put(2, 8.5, 0.2, nil)
	want.Put(3, 9, 0, nil)

	if !p.Equal(want) {
		t.Fatalf("DecodePath = %+v, want %+v", p.Steps(), want.Steps())
	}
	if p.HasQuotes() {
		t.Fatalf("HasQuotes() = true, want false")
	}
}

func TestDecodePathSkipsNaNQuoteSlot(t *testing.T) {
	p := mustDecode(t, model.Matrix{
		{1, 2, 3},
		{8, 8.5, 9},
		{0.1, 0.2, 0},
		{0.25, 0.25, 0.25},
		{8.1, 8.6, 9.1},
		{0.5, nan, 0.5},
		{8.2, nan, 9.2},
	})

	for _, tc := range []struct {
		time  int
		count int
	}{{1, 2}, {2, 1}, {3, 2}} {
		e, ok := p.Step(tc.time)
		if !ok {
			t.Fatalf("Step(%d) missing", tc.time)
		}
		if len(e.ForwardQuotes) != tc.count {
			t.Fatalf("Step(%d) quotes = %v, want %d", tc.time, e.ForwardQuotes, tc.count)
		}
	}
	e, _ := p.Step(2)
	if e.ForwardQuotes[0] != (model.ForwardQuote{TimeToMaturity: 0.25, FuturesPrice: 8.6}) {
		t.Fatalf("Step(2) quote = %+v", e.ForwardQuotes[0])
	}
}

func TestDecodePathDropsHalfNaNPair(t *testing.T) {
	p := mustDecode(t, model.Matrix{
		{0, 1},
		{10, 11},
		{0.1, 0.1},
		{nan, 0.5},
		{9.9, nan},
	})
	for _, step := range p.Steps() {
		if step.HasQuotes() {
			t.Fatalf("Step(%d) kept a half-NaN quote: %v", step.Time, step.ForwardQuotes)
		}
	}
}

func TestDecodePathSkipsGapsIndividually(t *testing.T) {
	p := mustDecode(t, model.Matrix{
		{0},
		{10},
		{0.1},
		{nan},
		{nan},
		{1.5},
		{10.5},
	})
	e, _ := p.Step(0)
	if len(e.ForwardQuotes) != 1 || e.ForwardQuotes[0].TimeToMaturity != 1.5 {
		t.Fatalf("quotes after a NaN gap = %v, want the second slot kept", e.ForwardQuotes)
	}
}

func TestDecodePathFloorsTime(t *testing.T) {
	p := mustDecode(t, model.Matrix{
		{1.9999, 2.0001, 0.5},
		{1, 2, 3},
		{0, 0, 0},
	})
	want := []int{0, 1, 2}
	got := p.Times()
	if len(got) != len(want) {
		t.Fatalf("Times() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Times() = %v, want %v", got, want)
		}
	}
}

func TestDecodePathDuplicateTimeLastWriteWins(t *testing.T) {
	p := mustDecode(t, model.Matrix{
		{1, 1.5},
		{8, 9},
		{0.1, 0.2},
		{0.5, nan},
		{8.5, nan},
	})
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
	e, _ := p.Step(1)
	if e.SpotPrice != 9 || e.ConvenienceYield != 0.2 || e.HasQuotes() {
		t.Fatalf("Step(1) = %+v, want the later column", e)
	}
	if p.HasQuotes() {
		t.Fatalf("quote count of the overwritten column still tracked")
	}
}

func TestDecodePathEmptyColumns(t *testing.T) {
	p := mustDecode(t, model.Matrix{{}, {}, {}})
	if p.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", p.Len())
	}
}

func TestDecodePathRejectsMalformed(t *testing.T) {
	cases := map[string]model.Matrix{
		"nil":             nil,
		"no rows":         {},
		"one row":         {{1}},
		"two rows":        {{1}, {2}},
		"even rows":       {{1}, {2}, {3}, {4}},
		"ragged middle":   {{1, 2}, {3}, {5, 6}},
		"ragged last row": {{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9}},
		"nan time":        {{nan}, {1}, {2}},
		"inf time":        {{math.Inf(1)}, {1}, {2}},
		"negative time":   {{0, -0.5}, {1, 2}, {3, 4}},
		"huge times":      {{1e300, 2e300}, {1, 2}, {0, 0}},
		"time at 2^63":    {{math.Ldexp(1, 63)}, {1}, {2}},
	}
	for name, m := range cases {
		t.Run(name, func(t *testing.T) {
			assertShapeError(t, m)
		})
	}
}

func TestEncodePathEmpty(t *testing.T) {
	for _, p := range []*model.SimulatedPath{nil, model.NewSimulatedPath()} {
		m := EncodePath(p)
		if m.Rows() != 3 || m.Cols() != 0 {
			t.Fatalf("EncodePath(empty) = %dx%d, want 3x0", m.Rows(), m.Cols())
		}
		if _, err := DecodePath(m); err != nil {
			t.Fatalf("DecodePath(EncodePath(empty)): %v", err)
		}
	}
}

func TestEncodePathPadsMissingQuotes(t *testing.T) {
	p := model.NewSimulatedPath()
	p.Put(1, 8, 0.1, nil)
	p.Put(2, 8.5, 0.2, []model.ForwardQuote{{TimeToMaturity: 0.25, FuturesPrice: 8.7}})
	p.Put(3, 9, 0, nil)

	m := EncodePath(p)
	if m.Rows() != 5 || m.Cols() != 3 {
		t.Fatalf("EncodePath = %dx%d, want 5x3", m.Rows(), m.Cols())
	}
	if m[0][0] != 1 || m[0][1] != 2 || m[0][2] != 3 {
		t.Fatalf("timeline row = %v, want ascending times", m[0])
	}
	if m[3][1] != 0.25 || m[4][1] != 8.7 {
		t.Fatalf("quote cells = (%v, %v), want (0.25, 8.7)", m[3][1], m[4][1])
	}
	for _, j := range []int{0, 2} {
		if !math.IsNaN(m[3][j]) || !math.IsNaN(m[4][j]) {
			t.Fatalf("column %d slot = (%v, %v), want NaN/NaN", j, m[3][j], m[4][j])
		}
	}
}

func TestEncodePathAfterQuoteRetraction(t *testing.T) {
	p := model.NewSimulatedPath()
	p.Put(1, 8, 0.1, []model.ForwardQuote{{TimeToMaturity: 0.5, FuturesPrice: 8}})
	p.Put(1, 8, 0.1, nil)

	if m := EncodePath(p); m.Rows() != 3 {
		t.Fatalf("EncodePath rows = %d, want 3 once quotes were retracted", m.Rows())
	}
}

func TestPathRoundTrip(t *testing.T) {
	p := model.NewSimulatedPath()
	p.Put(0, 100, 0.6, []model.ForwardQuote{{0.25, 101}, {0.5, 102}, {1, 104}})
	p.Put(1, 99.5, 0.58, []model.ForwardQuote{{0.25, 100.2}})
	p.Put(2, 98.7, 0.61, nil)
	p.Put(7, 101.3, -0.02, []model.ForwardQuote{{0.25, 101.1}, {0.75, 102.9}})

	got := mustDecode(t, EncodePath(p))
	if !got.Equal(p) {
		t.Fatalf("round trip = %+v, want %+v", got.Steps(), p.Steps())
	}
	if got.MaxQuoteCount() != 3 {
		t.Fatalf("MaxQuoteCount() = %d, want 3", got.MaxQuoteCount())
	}
}

func TestMatrixRoundTrip(t *testing.T) {
	m := model.Matrix{
		{0, 1, 2},
		{10, 11, 12},
		{0.1, 0.2, 0.3},
		{0.5, 0.5, nan},
		{10.5, 11.5, nan},
	}
	out := EncodePath(mustDecode(t, m))
	for i := range m {
		for j := range m[i] {
			a, b := m[i][j], out[i][j]
			if a != b && !(math.IsNaN(a) && math.IsNaN(b)) {
				t.Fatalf("cell (%d,%d) = %v, want %v", i, j, b, a)
			}
		}
	}
}
