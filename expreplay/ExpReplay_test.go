package expreplay

import (
	"fmt"
	"sort"
	"testing"

	"github.com/samuelfneumann/gogfn/containers"
	"github.com/samuelfneumann/gogfn/environment/hypergrid"
	"github.com/samuelfneumann/gogfn/estimators"
	"github.com/samuelfneumann/gogfn/gfnerr"
	"github.com/samuelfneumann/gogfn/samplers"
	"github.com/samuelfneumann/gogfn/utils/intutils"
)

func sample(t *testing.T, n int, seed uint64) *containers.Trajectories {
	env, err := hypergrid.New(2, 8, 0)
	if err != nil {
		t.Fatal(err)
	}
	pf, err := estimators.NewDiscrete(estimators.NewUniform(3),
		estimators.NewKHot(2, 8, 0), env.ActionSpace(), false)
	if err != nil {
		t.Fatal(err)
	}

	traj, err := samplers.New(pf, seed).SampleTrajectories(env,
		samplers.SampleOptions{N: n})
	if err != nil {
		t.Fatal(err)
	}
	return traj
}

func newBuffer(t *testing.T, remove SelectorType, min,
	max int) *ReplayBuffer {
	buffer, err := Config{
		RemoveMethod:      remove,
		MinReplayCapacity: min,
		MaxReplayCapacity: max,
	}.Create(0)
	if err != nil {
		t.Fatal(err)
	}
	return buffer
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		name   string
		remove SelectorType
	}{
		{"fifo", Fifo},
		{"prioritized", Prioritized},
		{"uniform", Uniform},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			buffer := newBuffer(t, test.remove, 1, 25)
			batch := sample(t, 10, 1)

			wants := []int{10, 20, 25, 25}
			for i, want := range wants {
				if err := buffer.Add(batch); err != nil {
					t.Fatal(err)
				}
				if buffer.Len() != want {
					t.Errorf("add %v: want %v rows, have %v", i, want,
						buffer.Len())
				}
			}
			if batch.Len() != 10 {
				t.Error("adding should not modify the added batch")
			}
		})
	}
}

func TestSample(t *testing.T) {
	buffer := newBuffer(t, Fifo, 1, 100)
	traj := sample(t, 7, 2)
	if err := buffer.Add(traj); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		n    int
		want int
	}{
		{"fewer", 3, 3},
		{"all", 7, 7},
		{"more", 50, 7},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := buffer.Sample(test.n)
			if err != nil {
				t.Fatal(err)
			}
			if s.Len() != test.want {
				t.Errorf("want %v rows, have %v", test.want, s.Len())
			}
			if _, ok := s.(*containers.Trajectories); !ok {
				t.Errorf("want trajectories, have %T", s)
			}
		})
	}
}

func TestTransitionsBuffer(t *testing.T) {
	buffer := newBuffer(t, Fifo, 1, 30)
	tr, err := sample(t, 10, 3).ToTransitions()
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := buffer.Add(tr); err != nil {
			t.Fatal(err)
		}
	}

	if want := intutils.Min(3*tr.Len(), 30); buffer.Len() != want {
		t.Errorf("want %v rows, have %v", want, buffer.Len())
	}
	s, err := buffer.Sample(5)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*containers.Transitions); !ok {
		t.Errorf("want transitions, have %T", s)
	}

	// Types are never mixed
	err = buffer.Add(sample(t, 2, 4))
	if !gfnerr.IsUnsupported(err) {
		t.Errorf("want unsupported operation, have %v", err)
	}
}

func TestFifoRemovesOldest(t *testing.T) {
	buffer := newBuffer(t, Fifo, 1, 10)
	first, second := sample(t, 10, 5), sample(t, 10, 6)
	for _, traj := range []*containers.Trajectories{first, second} {
		if err := buffer.Add(traj); err != nil {
			t.Fatal(err)
		}
	}

	s, err := buffer.Sample(10)
	if err != nil {
		t.Fatal(err)
	}
	got := lastStates(t, s)
	want := lastStates(t, second)
	sort.Strings(got)
	sort.Strings(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want the newest batch %v, have %v", want, got)
		}
	}
}

func TestPrioritizedKeepsTopRewards(t *testing.T) {
	const capacity = 8
	buffer := newBuffer(t, Prioritized, 1, capacity)

	var all []float64
	for seed := uint64(0); seed < 4; seed++ {
		traj := sample(t, 6, seed)
		lr, err := traj.LogRewards()
		if err != nil {
			t.Fatal(err)
		}
		all = append(all, lr...)
		if err := buffer.Add(traj); err != nil {
			t.Fatal(err)
		}
	}

	s, err := buffer.Sample(capacity)
	if err != nil {
		t.Fatal(err)
	}
	kept, err := s.LogRewards()
	if err != nil {
		t.Fatal(err)
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(all)))
	sort.Sort(sort.Reverse(sort.Float64Slice(kept)))
	if len(kept) != capacity {
		t.Fatalf("want %v rows, have %v", capacity, len(kept))
	}
	for i := range kept {
		if kept[i] != all[i] {
			t.Errorf("want top log-rewards %v, have %v", all[:capacity], kept)
			break
		}
	}
}

func TestSampleErrors(t *testing.T) {
	buffer := newBuffer(t, Fifo, 5, 10)
	if _, err := buffer.Sample(1); !IsEmptyBuffer(err) {
		t.Errorf("want empty buffer, have %v", err)
	}

	if err := buffer.Add(sample(t, 2, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := buffer.Sample(1); !IsInsufficientSamples(err) {
		t.Errorf("want insufficient samples, have %v", err)
	}

	_, err := Config{RemoveMethod: "Lifo", MaxReplayCapacity: 1}.Create(0)
	if err == nil {
		t.Error("want error for unknown selector")
	}
	_, err = Config{RemoveMethod: Fifo, MinReplayCapacity: 3,
		MaxReplayCapacity: 2}.Create(0)
	if err == nil {
		t.Error("want error when min capacity exceeds max capacity")
	}
}

func lastStates(t *testing.T, c containers.Container) []string {
	traj, ok := c.(*containers.Trajectories)
	if !ok {
		t.Fatalf("want trajectories, have %T", c)
	}
	last := traj.LastStates()
	out := make([]string, last.Len())
	for i := range out {
		out[i] = fmt.Sprint(last.Row(i))
	}
	return out
}
