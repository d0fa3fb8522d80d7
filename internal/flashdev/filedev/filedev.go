// Package filedev backs the flash device contract with a flat image
// file: both regions back to back, exactly the linker layout the real
// firmware sees. The file contents ARE the persisted region byte layout,
// so an image written here can be flashed onto a device unchanged.
package filedev

import (
	"bytes"
	"fmt"
	"os"

	"past/internal/flashdev"
)

// Device is a file-backed flash image. Not safe for concurrent use.
type Device struct {
	f          *os.File
	regionSize uint32
}

// Open opens or creates an image at path holding two erased regions of
// regionSize bytes each. An existing file of the wrong size is rejected
// rather than resized, since a size mismatch means the geometry in the
// config does not match the image.
func Open(path string, regionSize uint32) (*Device, error) {
	size := int64(regionSize) * flashdev.NumRegions

	f, err := os.OpenFile(path, os.O_RDWR, 0600)
	if os.IsNotExist(err) {
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0600)
		if err != nil {
			return nil, fmt.Errorf("%w: creating image: %v", flashdev.ErrIO, err)
		}
		if _, err := f.Write(bytes.Repeat([]byte{0xFF}, int(size))); err != nil {
			f.Close()
			return nil, fmt.Errorf("%w: blanking image: %v", flashdev.ErrIO, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("%w: opening image: %v", flashdev.ErrIO, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", flashdev.ErrIO, err)
	}
	if info.Size() != size {
		f.Close()
		return nil, fmt.Errorf("image %s is %d bytes, want %d (2 regions of %d)",
			path, info.Size(), size, regionSize)
	}

	return &Device{f: f, regionSize: regionSize}, nil
}

// Close syncs and closes the image.
func (d *Device) Close() error {
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return fmt.Errorf("%w: syncing image: %v", flashdev.ErrIO, err)
	}
	return d.f.Close()
}

func (d *Device) RegionSize() uint32 {
	return d.regionSize
}

func (d *Device) base(region int) int64 {
	return int64(region) * int64(d.regionSize)
}

func (d *Device) check(region int, off, n uint32) error {
	if region < 0 || region >= flashdev.NumRegions {
		return fmt.Errorf("%w: region %d out of range", flashdev.ErrIO, region)
	}
	if off > d.regionSize || n > d.regionSize-off {
		return fmt.Errorf("%w: access [%d,%d) beyond region size %d", flashdev.ErrIO, off, off+n, d.regionSize)
	}
	return nil
}

func (d *Device) EraseRegion(region int) error {
	if err := d.check(region, 0, 0); err != nil {
		return err
	}
	blank := bytes.Repeat([]byte{0xFF}, int(d.regionSize))
	if _, err := d.f.WriteAt(blank, d.base(region)); err != nil {
		return fmt.Errorf("%w: erasing region %d: %v", flashdev.ErrIO, region, err)
	}
	return nil
}

func (d *Device) Program(region int, off uint32, data []byte) error {
	if err := d.check(region, off, uint32(len(data))); err != nil {
		return err
	}
	cur := make([]byte, len(data))
	if _, err := d.f.ReadAt(cur, d.base(region)+int64(off)); err != nil {
		return fmt.Errorf("%w: reading back region %d: %v", flashdev.ErrIO, region, err)
	}
	for i, b := range data {
		cur[i] &= b
	}
	if _, err := d.f.WriteAt(cur, d.base(region)+int64(off)); err != nil {
		return fmt.Errorf("%w: programming region %d: %v", flashdev.ErrIO, region, err)
	}
	return nil
}

func (d *Device) Read(region int, off uint32, n uint32) ([]byte, error) {
	if err := d.check(region, off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	if _, err := d.f.ReadAt(out, d.base(region)+int64(off)); err != nil {
		return nil, fmt.Errorf("%w: reading region %d: %v", flashdev.ErrIO, region, err)
	}
	return out, nil
}
