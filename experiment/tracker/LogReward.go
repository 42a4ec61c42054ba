package tracker

import (
	"github.com/samuelfneumann/gogfn/containers"
	"gonum.org/v1/gonum/stat"
)

// LogReward tracks and saves the mean log-reward of each batch of
// trajectories in an experiment
type LogReward struct {
	means    []float64
	filename string
}

// NewLogReward returns a new LogReward Tracker which saves its data at
// filename
func NewLogReward(filename string) *LogReward {
	return &LogReward{filename: filename}
}

// Track caches the mean log-reward of traj
func (l *LogReward) Track(traj *containers.Trajectories) error {
	if traj.Len() == 0 {
		return nil
	}
	lr, err := traj.LogRewards()
	if err != nil {
		return err
	}
	l.means = append(l.means, stat.Mean(lr, nil))
	return nil
}

// Data returns the mean log-rewards tracked so far
func (l *LogReward) Data() []float64 {
	return append([]float64{}, l.means...)
}

// Save saves the tracked data to disk
func (l *LogReward) Save() error {
	return save(l.filename, l.means)
}
