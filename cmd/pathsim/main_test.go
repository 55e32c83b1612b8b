package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/commodity-pathsim/internal/api"
	"github.com/signalsfoundry/commodity-pathsim/internal/codec"
	"github.com/signalsfoundry/commodity-pathsim/internal/engine/enginetest"
	"github.com/signalsfoundry/commodity-pathsim/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDecodeCmdPrintsPath(t *testing.T) {
	path := writeFile(t, "m.json", `[[1,2,3],[8,8.5,9],[0.1,0.2,0],[0.5,0.5,null],[8.1,8.6,null]]`)

	out, err := execute(t, "decode", "--json", path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var resp api.PathResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(resp.Steps) != 3 || len(resp.Steps[2].ForwardQuotes) != 0 || len(resp.Steps[0].ForwardQuotes) != 1 {
		t.Fatalf("decoded steps = %+v", resp.Steps)
	}

	text, err := execute(t, "decode", path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(text, "3 steps, up to 1 forward quotes per step") {
		t.Fatalf("text output = %q", text)
	}
}

func TestDecodeCmdRejectsMalformedMatrix(t *testing.T) {
	path := writeFile(t, "m.json", `[[1,2],[8,9]]`)
	if _, err := execute(t, "decode", path); !errors.Is(err, codec.ErrShape) {
		t.Fatalf("decode error = %v, want ErrShape", err)
	}
}

func TestEncodeCmdRoundTripsDecodeOutput(t *testing.T) {
	matrix := `[[1,2],[8,8.5],[0.1,0.2],[0.5,null],[8.1,null]]`
	decoded, err := execute(t, "decode", "--json", writeFile(t, "m.json", matrix))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	encoded, err := execute(t, "encode", writeFile(t, "p.json", decoded))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	got, err := readMatrix(strings.NewReader(encoded))
	if err != nil {
		t.Fatalf("readMatrix: %v", err)
	}
	want, _ := readMatrix(strings.NewReader(matrix))
	gotPath, err := codec.DecodePath(got)
	if err != nil {
		t.Fatalf("DecodePath(encoded): %v", err)
	}
	wantPath, _ := codec.DecodePath(want)
	if !gotPath.Equal(wantPath) || got.Rows() != 5 {
		t.Fatalf("round trip matrix = %v, want %v", got, want)
	}
}

func TestSimulateCmdAgainstEngine(t *testing.T) {
	srv, err := enginetest.NewServer(nil)
	if err != nil {
		t.Fatalf("enginetest.NewServer: %v", err)
	}
	t.Cleanup(srv.Close)
	srv.Backend.Results["data"] = model.Matrix{{0, 1}, {8, 8.3}, {0.1, 0.11}}

	args := []string{
		"simulate", "--json", "--engine", srv.Addr,
		"--spot", "8", "--cy", "0.1", "--mu", "0.05", "--sigma-spot", "0.3",
		"--kappa", "1.2", "--alpha", "0.06", "--sigma-cy", "0.25",
		"--interest", "0.02", "--rho", "0.7", "--lambda", "0.1",
		"--no-term-structure",
	}
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("simulate: %v\n%s", err, out)
	}
	var resp api.PathResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if resp.TaskID == "" || len(resp.Steps) != 2 {
		t.Fatalf("simulate output = %+v", resp)
	}

	// Detached, not exited: the engine stays up for the next run.
	if srv.Backend.Running() != 1 {
		t.Fatalf("Running() = %d, want the engine left running", srv.Backend.Running())
	}
	proc, _ := srv.Backend.Process("engine-1")
	if proc.Attached {
		t.Fatalf("engine process still attached after simulate")
	}
	if last := proc.Evals[len(proc.Evals)-1]; !strings.Contains(last, "ttm,false )") {
		t.Fatalf("post-process eval = %q, want term structure off", last)
	}

	if _, err := execute(t, append(args, "--exit")...); err != nil {
		t.Fatalf("simulate --exit: %v", err)
	}
	if srv.Backend.Running() != 0 {
		t.Fatalf("Running() = %d after --exit, want 0", srv.Backend.Running())
	}
}

func TestSimulateCmdRequiresInitialConditions(t *testing.T) {
	if _, err := execute(t, "simulate", "--engine", "127.0.0.1:1"); err == nil {
		t.Fatalf("simulate without --spot/--cy succeeded")
	}
}
