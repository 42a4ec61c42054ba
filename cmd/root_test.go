package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gogfn/experiment"
)

func execute(t *testing.T, args ...string) []byte {
	out := filepath.Join(t.TempDir(), "report.json")
	cmd := RootCommand()
	cmd.SetArgs(append(args, "--out", out, "--log-level", "error"))
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		loops int
	}{
		{"sample", []string{"sample", "--env", "HyperGrid", "--n", "3",
			"--iterations", "2"}, 0},
		{"localsearch", []string{"localsearch", "--env", "DiscreteEBM",
			"--ndim", "3", "--n", "3", "--iterations", "2", "--loops", "2",
			"--acceptance", "greedy", "--debug"}, 2},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var r experiment.Report
			if err := json.Unmarshal(execute(t, test.args...), &r); err != nil {
				t.Fatal(err)
			}
			if want := 2 * 3 * (1 + test.loops); r.Trajectories != want {
				t.Errorf("want %v trajectories, have %v", want, r.Trajectories)
			}
			if r.L1 == nil {
				t.Error("want an L1 distance")
			}
		})
	}
}

func TestDPCommand(t *testing.T) {
	var r experiment.DPReport
	data := execute(t, "dp", "--env", "HyperGrid", "--ndim", "2",
		"--height", "6")
	if err := json.Unmarshal(data, &r); err != nil {
		t.Fatal(err)
	}
	if r.L1 > 1e-9 {
		t.Errorf("want matching distributions, have L1 %v", r.L1)
	}
}

func TestInvalidLogLevel(t *testing.T) {
	cmd := RootCommand()
	cmd.SetArgs([]string{"dp", "--log-level", "loud"})
	if err := cmd.Execute(); err == nil {
		t.Error("want error for an unknown log level")
	}
}
