// Package boltdev backs the flash device contract with a bbolt database,
// one value per region. Each program or erase is a single transaction,
// which gives host-side tooling an image store that cannot be torn by a
// crashed process, at the cost of no longer being byte-identical to the
// on-device layout (the file backend keeps that property).
package boltdev

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"past/internal/flashdev"
)

var regionsBucket = []byte("regions")

// Device is a bbolt-backed flash image. Not safe for concurrent use.
type Device struct {
	db         *bolt.DB
	regionSize uint32
}

// Open creates or opens a bbolt image at path. Missing regions are
// created erased; existing regions of the wrong size are rejected.
func Open(path string, regionSize uint32) (*Device, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: opening image db: %v", flashdev.ErrIO, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(regionsBucket)
		if err != nil {
			return fmt.Errorf("%w: creating regions bucket: %v", flashdev.ErrIO, err)
		}
		for region := 0; region < flashdev.NumRegions; region++ {
			cur := b.Get(regionKey(region))
			if cur == nil {
				if err := b.Put(regionKey(region), bytes.Repeat([]byte{0xFF}, int(regionSize))); err != nil {
					return fmt.Errorf("%w: blanking region %d: %v", flashdev.ErrIO, region, err)
				}
				continue
			}
			if uint32(len(cur)) != regionSize {
				return fmt.Errorf("image region %d is %d bytes, want %d", region, len(cur), regionSize)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Device{db: db, regionSize: regionSize}, nil
}

// Close closes the underlying database.
func (d *Device) Close() error {
	return d.db.Close()
}

func (d *Device) RegionSize() uint32 {
	return d.regionSize
}

func regionKey(region int) []byte {
	return []byte{byte(region)}
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
	err := d.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(regionsBucket).Put(regionKey(region), bytes.Repeat([]byte{0xFF}, int(d.regionSize)))
	})
	if err != nil {
		return fmt.Errorf("%w: erasing region %d: %v", flashdev.ErrIO, region, err)
	}
	return nil
}

func (d *Device) Program(region int, off uint32, data []byte) error {
	if err := d.check(region, off, uint32(len(data))); err != nil {
		return err
	}
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(regionsBucket)
		cur := b.Get(regionKey(region))
		next := make([]byte, len(cur))
		copy(next, cur)
		for i, v := range data {
			next[off+uint32(i)] &= v
		}
		return b.Put(regionKey(region), next)
	})
	if err != nil {
		return fmt.Errorf("%w: programming region %d: %v", flashdev.ErrIO, region, err)
	}
	return nil
}

func (d *Device) Read(region int, off uint32, n uint32) ([]byte, error) {
	if err := d.check(region, off, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	err := d.db.View(func(tx *bolt.Tx) error {
		cur := tx.Bucket(regionsBucket).Get(regionKey(region))
		copy(out, cur[off:off+n])
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: reading region %d: %v", flashdev.ErrIO, region, err)
	}
	return out, nil
}
