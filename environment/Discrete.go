package environment

import (
	"github.com/samuelfneumann/gogfn/actions"
	"github.com/samuelfneumann/gogfn/states"
)

// MaskValid checks discrete actions against the masks carried by the
// states. Dummy actions are never valid and the exit action is never a
// valid backward action.
func MaskValid(s *states.States, a *actions.Actions, backward bool) bool {
	if !s.Space().IsDiscrete() || !a.Space().IsDiscrete() {
		return false
	}

	for i := 0; i < s.Len(); i++ {
		idx := a.Index(i)

		var mask []bool
		if backward {
			mask = s.BackwardMask(i)
		} else {
			mask = s.ForwardMask(i)
		}
		if idx < 0 || idx >= len(mask) || !mask[idx] {
			return false
		}
	}
	return true
}
