// Package past implements a crash-safe parameter store over two fixed
// flash regions. Named units (small integer ids mapping to short byte
// payloads) are appended to the active region as checksummed records;
// the newest valid record for an id shadows all older ones, and a
// zero-length record is a tombstone. When the active region fills up,
// live records are compacted into the other region, ping-pong style,
// with the region header's generation counter deciding which region is
// active after any reset.
//
// All multi-byte values on flash are little-endian, matching the MCU
// byte order of the original firmware image.
package past

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// On-flash record layout:
//
//	[0:2]  unit id
//	[2:4]  payload length
//	[4:8]  CRC-32C over id + length + payload
//	[8:]   payload
//
// An all-ones header marks unwritten flash. The checksum makes a record
// recognizably valid only once every byte of it has been programmed, so
// a write interrupted at any point decodes as corrupt, never as a
// shorter valid record.
const recordHeaderSize = 8

// Unit ids 0 and 0xFFFF are reserved: 0 so an id is never all-zeroes,
// 0xFFFF so a valid header is never all-ones.
const (
	MinUnitID = 1
	MaxUnitID = 0xFFFE
)

// MaxPayload is the largest payload length the record header can encode.
// The region capacity usually imposes a tighter bound.
const MaxPayload = 0xFFFE

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Record is one decoded (unit id, payload) entry.
type Record struct {
	ID      uint16
	Payload []byte
}

// Tombstone reports whether the record marks its unit id deleted.
func (r Record) Tombstone() bool {
	return len(r.Payload) == 0
}

// EncodedSize returns the record's total on-flash size.
func (r Record) EncodedSize() uint32 {
	return recordHeaderSize + uint32(len(r.Payload))
}

func encodedSize(payloadLen int) uint32 {
	return recordHeaderSize + uint32(payloadLen)
}

func recordCRC(id uint16, payload []byte) uint32 {
	var hdr [4]byte
	binary.LittleEndian.PutUint16(hdr[0:2], id)
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(payload)))
	crc := crc32.Update(0, crcTable, hdr[:])
	return crc32.Update(crc, crcTable, payload)
}

// encodeRecord serializes a record for a single programming pass.
func encodeRecord(id uint16, payload []byte) []byte {
	buf := make([]byte, recordHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(buf[0:2], id)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(payload)))
	binary.LittleEndian.PutUint32(buf[4:8], recordCRC(id, payload))
	copy(buf[recordHeaderSize:], payload)
	return buf
}

// decodeRecord attempts to decode a record at off within buf. It returns
// errNoRecord when the header bytes are still erased (or no full header
// fits before the end of buf), and ErrCorruptRecord when the header or
// checksum is damaged. The payload is copied out of buf.
func decodeRecord(buf []byte, off uint32) (Record, error) {
	if off > uint32(len(buf)) || uint32(len(buf))-off < recordHeaderSize {
		return Record{}, errNoRecord
	}
	hdr := buf[off : off+recordHeaderSize]
	if allErased(hdr) {
		return Record{}, errNoRecord
	}

	id := binary.LittleEndian.Uint16(hdr[0:2])
	plen := uint32(binary.LittleEndian.Uint16(hdr[2:4]))
	crc := binary.LittleEndian.Uint32(hdr[4:8])

	if id < MinUnitID || id > MaxUnitID {
		return Record{}, fmt.Errorf("%w: bad unit id %d at offset %d", ErrCorruptRecord, id, off)
	}
	if plen > uint32(len(buf))-off-recordHeaderSize {
		return Record{}, fmt.Errorf("%w: length %d at offset %d runs past region end", ErrCorruptRecord, plen, off)
	}

	payload := make([]byte, plen)
	copy(payload, buf[off+recordHeaderSize:])
	if recordCRC(id, payload) != crc {
		return Record{}, fmt.Errorf("%w: checksum mismatch for unit %d at offset %d", ErrCorruptRecord, id, off)
	}
	return Record{ID: id, Payload: payload}, nil
}

func allErased(b []byte) bool {
	for _, v := range b {
		if v != 0xFF {
			return false
		}
	}
	return true
}
