package flashdev

import "fmt"

// FaultOn wraps a Device and fails primitive calls on demand. Used by
// tests to drive the store into its faulted state and to simulate power
// loss part-way through a program operation.
type FaultOn struct {
	Device

	// Remaining counts down on every erase/program call; when it reaches
	// zero the call fails (after writing PartialBytes, if set).
	Remaining int

	// PartialBytes is how many bytes of the failing Program call are
	// still committed to the underlying device before the fault, as a
	// power loss mid-program would leave them.
	PartialBytes int

	armed bool
}

// Arm schedules a fault on the nth write-class call from now (1 = next).
func (f *FaultOn) Arm(n int) {
	f.Remaining = n
	f.armed = true
}

func (f *FaultOn) trip() bool {
	if !f.armed {
		return false
	}
	f.Remaining--
	if f.Remaining > 0 {
		return false
	}
	f.armed = false
	return true
}

func (f *FaultOn) EraseRegion(region int) error {
	if f.trip() {
		return fmt.Errorf("%w: injected erase fault", ErrIO)
	}
	return f.Device.EraseRegion(region)
}

func (f *FaultOn) Program(region int, off uint32, data []byte) error {
	if f.trip() {
		if f.PartialBytes > 0 && f.PartialBytes < len(data) {
			if err := f.Device.Program(region, off, data[:f.PartialBytes]); err != nil {
				return err
			}
		}
		return fmt.Errorf("%w: injected program fault", ErrIO)
	}
	return f.Device.Program(region, off, data)
}
