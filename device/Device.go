// Package device names the compute backends that tensors may live on.
//
// All computation in this module runs on the CPU. The device is still
// tracked so that states, actions and policies built for different
// backends fail fast instead of silently moving data.
package device

import "github.com/samuelfneumann/gogfn/gfnerr"

// Device identifies a compute backend
type Device string

// Available devices
const (
	CPU Device = "cpu"
)

// Default is the device used when none is specified
const Default = CPU

// Ensure returns a DeviceMismatch error if the devices are not all
// equal to want
func Ensure(op string, want Device, have ...Device) error {
	for _, d := range have {
		if d != want {
			return gfnerr.New(op, gfnerr.ErrDeviceMismatch,
				"\n\twant(%v)\n\thave(%v)", want, d)
		}
	}
	return nil
}
