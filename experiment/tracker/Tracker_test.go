package tracker

import (
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/gogfn/environment/hypergrid"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/samplers"
	"gonum.org/v1/gonum/floats"
)

func TestSaveAndLoad(t *testing.T) {
	env, err := hypergrid.New(2, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	pf, err := estimators.NewDiscrete(estimators.NewUniform(3),
		estimators.NewKHot(2, 5, 0), env.ActionSpace(), false)
	if err != nil {
		t.Fatal(err)
	}
	s := samplers.New(pf, 0)

	dir := t.TempDir()
	lr := NewLogReward(filepath.Join(dir, "logreward.bin"))
	length := NewLength(filepath.Join(dir, "length.bin"))

	total := 0
	for i := 0; i < 3; i++ {
		traj, err := s.SampleTrajectories(env, samplers.SampleOptions{N: 4})
		if err != nil {
			t.Fatal(err)
		}
		total += traj.Len()
		for _, tr := range []Tracker{lr, length} {
			if err := tr.Track(traj); err != nil {
				t.Fatal(err)
			}
		}
	}

	tests := []struct {
		name    string
		file    string
		tracked []float64
		want    int
	}{
		{"logreward", lr.filename, lr.Data(), 3},
		{"length", length.filename, length.Data(), total},
	}
	if err := lr.Save(); err != nil {
		t.Fatal(err)
	}
	if err := length.Save(); err != nil {
		t.Fatal(err)
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data, err := LoadData(test.file)
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != test.want {
				t.Errorf("want %v values, have %v", test.want, len(data))
			}
			if !floats.Equal(data, test.tracked) {
				t.Errorf("loaded %v, tracked %v", data, test.tracked)
			}
		})
	}

	if _, err := LoadData(filepath.Join(dir, "missing.bin")); err == nil {
		t.Error("want error loading a missing file")
	}
}
