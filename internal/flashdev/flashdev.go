// Package flashdev defines the flash primitive contract the parameter
// store depends on, plus an in-memory simulator used by tests and the
// CLI. Real NOR flash semantics apply: erase sets every bit of a region,
// programming can only clear bits. A Program call that tries to set a
// cleared bit silently loses that bit, exactly as hardware does; the
// store's checksum rule is what surfaces the damage.
package flashdev

import (
	"bytes"
	"errors"
	"fmt"
)

// NumRegions is fixed by the linker layout: two equally sized regions
// back to back.
const NumRegions = 2

// ErrIO wraps any physical read/erase/program failure. Callers match it
// with errors.Is.
var ErrIO = errors.New("flash i/o error")

// Device is the primitive interface supplied by the platform. All calls
// are synchronous and blocking; none are cancellable once started.
type Device interface {
	// RegionSize returns the capacity in bytes of each region.
	RegionSize() uint32
	// EraseRegion resets region (0 or 1) to the all-ones state.
	EraseRegion(region int) error
	// Program clears bits of the region starting at off. It never sets bits.
	Program(region int, off uint32, data []byte) error
	// Read returns n bytes of the region starting at off.
	Read(region int, off uint32, n uint32) ([]byte, error)
}

func checkRange(d Device, region int, off, n uint32) error {
	if region < 0 || region >= NumRegions {
		return fmt.Errorf("%w: region %d out of range", ErrIO, region)
	}
	if off > d.RegionSize() || n > d.RegionSize()-off {
		return fmt.Errorf("%w: access [%d,%d) beyond region size %d", ErrIO, off, off+n, d.RegionSize())
	}
	return nil
}

// Mem is an in-memory Device. The zero value is not usable; construct
// with NewMem.
type Mem struct {
	regions [NumRegions][]byte
}

// NewMem returns a simulated device with two erased regions of size bytes.
func NewMem(size uint32) *Mem {
	m := &Mem{}
	for i := range m.regions {
		m.regions[i] = bytes.Repeat([]byte{0xFF}, int(size))
	}
	return m
}

func (m *Mem) RegionSize() uint32 {
	return uint32(len(m.regions[0]))
}

func (m *Mem) EraseRegion(region int) error {
	if err := checkRange(m, region, 0, 0); err != nil {
		return err
	}
	for i := range m.regions[region] {
		m.regions[region][i] = 0xFF
	}
	return nil
}

func (m *Mem) Program(region int, off uint32, data []byte) error {
	if err := checkRange(m, region, off, uint32(len(data))); err != nil {
		return err
	}
	dst := m.regions[region][off:]
	for i, b := range data {
		dst[i] &= b
	}
	return nil
}

func (m *Mem) Read(region int, off uint32, n uint32) ([]byte, error) {
	if err := checkRange(m, region, off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.regions[region][off:])
	return out, nil
}

// Snapshot returns a copy of a region's raw contents. Test helper.
func (m *Mem) Snapshot(region int) []byte {
	out := make([]byte, len(m.regions[region]))
	copy(out, m.regions[region])
	return out
}

// Corrupt flips byte values of a region directly, bypassing program
// semantics. Test helper for simulating interrupted writes and stale data.
func (m *Mem) Corrupt(region int, off uint32, data []byte) {
	copy(m.regions[region][off:], data)
}
