package tracker

import (
	"github.com/samuelfneumann/gogfn/containers"
)

// Length tracks and saves the length of every trajectory in an
// experiment. A forward trajectory's length is the number of actions
// taken before exiting.
type Length struct {
	lengths  []float64
	filename string
}

// NewLength returns a new Length Tracker which saves its data at
// filename
func NewLength(filename string) *Length {
	return &Length{filename: filename}
}

// Track caches the length of each trajectory in traj
func (l *Length) Track(traj *containers.Trajectories) error {
	for _, k := range traj.TerminatingIdx() {
		l.lengths = append(l.lengths, float64(k))
	}
	return nil
}

// Data returns the lengths tracked so far
func (l *Length) Data() []float64 {
	return append([]float64{}, l.lengths...)
}

// Save saves the tracked data to disk
func (l *Length) Save() error {
	return save(l.filename, l.lengths)
}
