package past

import (
	"encoding/binary"
	"fmt"

	"past/internal/flashdev"
)

// Region header: 4-byte magic "PAST" + 4-byte generation counter.
// A freshly erased region reads as all-ones and therefore has no valid
// magic; the region with the highest valid generation is the active one.
const (
	regionHeaderSize = 8
	headerMagic      = 0x50415354 // "PAST"
)

// erasedGeneration is reserved as invalid. A power loss during the
// header program can commit the magic bytes while the generation bytes
// stay erased; accepting that header would put 0xFFFFFFFF into the
// generation comparison and wrap to 0 on the next compaction.
const erasedGeneration = 0xFFFFFFFF

type regionHeader struct {
	magic      uint32
	generation uint32
}

func (h regionHeader) valid() bool {
	return h.magic == headerMagic && h.generation != erasedGeneration
}

func encodeRegionHeader(generation uint32) []byte {
	buf := make([]byte, regionHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], headerMagic)
	binary.LittleEndian.PutUint32(buf[4:8], generation)
	return buf
}

func decodeRegionHeader(buf []byte) regionHeader {
	return regionHeader{
		magic:      binary.LittleEndian.Uint32(buf[0:4]),
		generation: binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// regionLog performs the sequential scan and append over one region.
type regionLog struct {
	dev    flashdev.Device
	region int
}

type scannedRecord struct {
	off uint32
	rec Record
}

// scanResult is everything a front-to-back scan recovers from a region.
type scanResult struct {
	records  []scannedRecord
	nextFree uint32
	// dirtyTail means the scan stopped on bytes that are neither a valid
	// record nor fully erased. Appending over such bytes could only clear
	// more bits, so the tail is unusable until the region is recycled.
	dirtyTail bool
}

func (l regionLog) header() (regionHeader, error) {
	buf, err := l.dev.Read(l.region, 0, regionHeaderSize)
	if err != nil {
		return regionHeader{}, fmt.Errorf("reading region %d header: %w", l.region, err)
	}
	return decodeRegionHeader(buf), nil
}

// scan decodes records front to back, stopping at the first offset that
// holds no valid record. Anything past the stop offset is never trusted,
// even if it would decode, so stale data left by earlier generations
// cannot resurface.
func (l regionLog) scan() (scanResult, error) {
	buf, err := l.dev.Read(l.region, 0, l.dev.RegionSize())
	if err != nil {
		return scanResult{}, fmt.Errorf("scanning region %d: %w", l.region, err)
	}

	res := scanResult{nextFree: regionHeaderSize}
	off := uint32(regionHeaderSize)
	for {
		rec, err := decodeRecord(buf, off)
		if err != nil {
			res.nextFree = off
			if err != errNoRecord {
				logger.Warn("scan stopped on corrupt record, truncating",
					"region", l.region, "offset", off, "err", err)
				res.dirtyTail = true
			} else if !allErased(buf[off:]) {
				// The header bytes read as unwritten but something behind
				// them does not. Left over from an interrupted append.
				res.dirtyTail = true
			}
			return res, nil
		}
		res.records = append(res.records, scannedRecord{off: off, rec: rec})
		off += rec.EncodedSize()
	}
}

// append programs an encoded record at off in a single pass and returns
// the next free offset. ErrRegionFull when it does not fit.
func (l regionLog) append(off uint32, encoded []byte) (uint32, error) {
	if off+uint32(len(encoded)) > l.dev.RegionSize() {
		return off, ErrRegionFull
	}
	if err := l.dev.Program(l.region, off, encoded); err != nil {
		return off, fmt.Errorf("appending %d bytes at offset %d: %w", len(encoded), off, err)
	}
	return off + uint32(len(encoded)), nil
}

// readRecord reads back and validates the record at off. Used for unit
// reads and for the compaction copy, so bit rot is caught rather than
// propagated.
func (l regionLog) readRecord(off uint32) (Record, error) {
	hdr, err := l.dev.Read(l.region, off, recordHeaderSize)
	if err != nil {
		return Record{}, fmt.Errorf("reading record header at offset %d: %w", off, err)
	}
	plen := uint32(binary.LittleEndian.Uint16(hdr[2:4]))
	if plen > l.dev.RegionSize()-off-recordHeaderSize {
		return Record{}, fmt.Errorf("record at region %d offset %d: %w: length %d runs past region end",
			l.region, off, ErrCorruptRecord, plen)
	}
	buf, err := l.dev.Read(l.region, off, recordHeaderSize+plen)
	if err != nil {
		return Record{}, fmt.Errorf("reading record at offset %d: %w", off, err)
	}
	rec, err := decodeRecord(buf, 0)
	if err != nil {
		if err == errNoRecord {
			err = ErrCorruptRecord
		}
		return Record{}, fmt.Errorf("record at region %d offset %d: %w", l.region, off, err)
	}
	return rec, nil
}
