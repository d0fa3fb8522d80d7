package past

import (
	"bytes"
	"errors"
	"testing"
)

func TestRecordRoundTrip(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	buf := encodeRecord(42, payload)

	rec, err := decodeRecord(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != 42 {
		t.Fatalf("ID = %d, want 42", rec.ID)
	}
	if !bytes.Equal(rec.Payload, payload) {
		t.Fatalf("Payload = %x, want %x", rec.Payload, payload)
	}
	if rec.EncodedSize() != uint32(len(buf)) {
		t.Fatalf("EncodedSize = %d, want %d", rec.EncodedSize(), len(buf))
	}
}

func TestRecordTombstone(t *testing.T) {
	buf := encodeRecord(7, nil)
	if len(buf) != recordHeaderSize {
		t.Fatalf("tombstone size = %d, want %d", len(buf), recordHeaderSize)
	}
	rec, err := decodeRecord(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Tombstone() {
		t.Fatal("zero-length record should be a tombstone")
	}
}

func TestRecordDecodeErased(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, 32)
	if _, err := decodeRecord(buf, 0); err != errNoRecord {
		t.Fatalf("err = %v, want errNoRecord", err)
	}
}

func TestRecordDecodeShortBuffer(t *testing.T) {
	buf := bytes.Repeat([]byte{0xFF}, 5)
	if _, err := decodeRecord(buf, 0); err != errNoRecord {
		t.Fatalf("err = %v, want errNoRecord", err)
	}
}

func TestRecordDecodeCorruptPayload(t *testing.T) {
	buf := encodeRecord(3, []byte("hello"))
	buf[recordHeaderSize] ^= 0x01
	if _, err := decodeRecord(buf, 0); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestRecordDecodeCorruptHeader(t *testing.T) {
	buf := encodeRecord(3, []byte("hello"))
	buf[4] ^= 0x80 // checksum byte
	if _, err := decodeRecord(buf, 0); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestRecordDecodeTruncated(t *testing.T) {
	// A power loss mid-payload leaves the header intact and the tail
	// erased; the length then runs past the end of what was written.
	full := encodeRecord(9, bytes.Repeat([]byte{0xAB}, 20))
	buf := make([]byte, len(full))
	for i := range buf {
		buf[i] = 0xFF
	}
	copy(buf, full[:recordHeaderSize+10])
	if _, err := decodeRecord(buf[:recordHeaderSize+10], 0); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
	if _, err := decodeRecord(buf, 0); !errors.Is(err, ErrCorruptRecord) {
		t.Fatalf("err = %v, want ErrCorruptRecord", err)
	}
}

func TestRecordDecodeReservedIDs(t *testing.T) {
	for _, id := range []uint16{0, 0xFFFF} {
		buf := encodeRecord(1, []byte{1})
		buf[0] = byte(id)
		buf[1] = byte(id >> 8)
		if _, err := decodeRecord(buf, 0); !errors.Is(err, ErrCorruptRecord) {
			t.Fatalf("id %d: err = %v, want ErrCorruptRecord", id, err)
		}
	}
}
